package adapters

import (
	"context"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

const (
	ZoomWebClientURL = "https://app.zoom.us/wc/join"

	zoomFrame          = "#webclient"
	zoomConfirmTimeout = 15 * time.Second
)

// zoomInClient builds probes that look inside the web client iframe first and
// then in the top-level document, since Zoom serves both layouts.
func zoomInClient(selector browser.Selector, timeout time.Duration) []Probe {
	return []Probe{
		probe(selector.InFrame(zoomFrame), timeout),
		probe(selector, time.Second),
	}
}

var (
	zoomCodeProbes = []Probe{
		probe(browser.CSS(`input[type="text"]`), 15*time.Second),
	}
	zoomLaunchProbes = []Probe{
		probe(browser.CSS(`.btn-join`), 10*time.Second),
		probe(browser.ButtonWithText("Join"), time.Second),
	}
	zoomPasscodeProbes = zoomInClient(browser.CSS(`#input-for-pwd`), 10*time.Second)
	zoomNameProbes     = zoomInClient(browser.CSS(`#input-for-name`), 5*time.Second)
	zoomMicProbes      = zoomInClient(browser.CSS(`button[aria-label="Mute my audio"], button[aria-label="Unmute my audio"], button[aria-label="Mute"], button[aria-label="Unmute"]`), 5*time.Second)
	zoomCameraProbes   = zoomInClient(browser.CSS(`button[aria-label="Stop my video"], button[aria-label="Start my video"], button[aria-label="Stop Video"], button[aria-label="Start Video"]`), 5*time.Second)
	zoomJoinProbes     = zoomInClient(browser.ButtonWithText("Join"), 10*time.Second)

	zoomRejections = []Indicator{
		{
			Probe: probe(browser.XPath(`//*[contains(normalize-space(text()), "This meeting has been ended")]`).InFrame(zoomFrame), 0),
			Label: "This meeting has been ended",
		},
		{
			Probe:     probe(browser.XPath(`//*[contains(normalize-space(text()), "Please wait for the host to start this meeting")]`).InFrame(zoomFrame), 0),
			Label:     "Please wait for the host to start this meeting",
			NeedsHost: true,
		},
	}
	zoomLandmarks = []Probe{
		probe(browser.CSS(`.footer__leave-btn, button[aria-label="Leave"]`).InFrame(zoomFrame), 0),
		probe(browser.CSS(`.footer__leave-btn, button[aria-label="Leave"]`), 0),
	}
)

type Zoom struct {
	Base
}

func NewZoom(base Base) *Zoom {
	return &Zoom{Base: base}
}

func (v *Zoom) Provider() models.Provider {
	return models.ProviderZoom
}

func (v *Zoom) Join(ctx context.Context, req Request) (Result, error) {
	return v.join(ctx, v.Provider(), req, func(r *runner) (bool, error) {
		if err := r.navigate(ctx, ZoomWebClientURL, 60*time.Second); err != nil {
			return false, err
		}

		if err := r.mandatory(ctx, "meeting_code_input", zoomCodeProbes, typeText(req.Target.MeetingCode, true)); err != nil {
			return false, err
		}
		if err := r.mandatory(ctx, "launch_click", zoomLaunchProbes, click); err != nil {
			return false, err
		}
		if err := r.settle(ctx, 5*time.Second); err != nil {
			return false, err
		}

		if len(req.Target.Passcode) > 0 {
			if err := r.mandatory(ctx, "passcode_input", zoomPasscodeProbes, typeText(req.Target.Passcode, true)); err != nil {
				return false, err
			}
		}
		if err := r.mandatory(ctx, "name_input", zoomNameProbes, typeText(req.DisplayName, true)); err != nil {
			return false, err
		}

		r.toggle(ctx, "microphone_toggle", zoomMicProbes, req.Media.MicrophoneEnabled, zoomToggleState("Mute"))
		r.toggle(ctx, "camera_toggle", zoomCameraProbes, req.Media.CameraEnabled, zoomToggleState("Stop"))

		if err := r.mandatory(ctx, "join_click", zoomJoinProbes, click); err != nil {
			return false, err
		}
		if err := r.settle(ctx, 5*time.Second); err != nil {
			return false, err
		}

		return r.confirm(ctx, zoomRejections, zoomLandmarks, v.confirmTimeout(zoomConfirmTimeout))
	})
}

// zoomToggleState reads the toggle's label: the button offers the opposite
// action, so "Mute ..." or "Stop ..." means the device is currently on.
func zoomToggleState(onPrefix string) stateReader {
	return func(ctx context.Context, el browser.Element) (bool, error) {
		label, _, err := el.Attribute(ctx, "aria-label")
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(label, onPrefix), nil
	}
}

package adapters

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

var (
	teamsContinueInBrowserProbes = []Probe{
		probe(browser.CSS(`button[data-tid="joinOnWebButton"]`), 15*time.Second),
		probe(browser.ButtonWithText("Continue on this browser", "Join on the web instead"), time.Second),
	}
	teamsNameProbes = []Probe{
		probe(browser.CSS(`input[data-tid="displayNameInput"]`), 10*time.Second),
		probe(browser.CSS(`input[placeholder="Type your name"]`), time.Second),
	}
	teamsMicProbes = []Probe{
		probe(browser.CSS(`[data-tid="toggle-mute"], toggle-button[data-tid="audio-toggle-button"], div[data-tid="audio-toggle-button"]`), 5*time.Second),
	}
	teamsCameraProbes = []Probe{
		probe(browser.CSS(`[data-tid="toggle-video"], toggle-button[data-tid="video-toggle-button"], div[data-tid="video-toggle-button"]`), 5*time.Second),
	}
	teamsJoinProbes = []Probe{
		probe(browser.CSS(`button[data-tid="prejoin-join-button"], button[data-tid="preJoinJoinButton"]`), 10*time.Second),
		probe(browser.ButtonWithText("Join now"), 2*time.Second),
	}
	teamsRejections = []Indicator{
		{
			Probe: probe(browser.XPath(`//*[contains(normalize-space(text()), "denied access")]`), 0),
			Label: "Denied access to the meeting",
		},
		{
			Probe: probe(browser.XPath(`//*[contains(normalize-space(text()), "meeting has ended")]`), 0),
			Label: "Meeting has ended",
		},
	}
	teamsLandmarks = []Probe{
		probe(browser.CSS(`button[data-tid="hangup-main-btn"], button[id="hangup-button"], button[data-tid="call-hangup"]`), 0),
	}
)

const teamsConfirmTimeout = 15 * time.Second

type Teams struct {
	Base
}

func NewTeams(base Base) *Teams {
	return &Teams{Base: base}
}

func (v *Teams) Provider() models.Provider {
	return models.ProviderTeams
}

func (v *Teams) Join(ctx context.Context, req Request) (Result, error) {
	return v.join(ctx, v.Provider(), req, func(r *runner) (bool, error) {
		if err := r.navigate(ctx, req.Target.Link, 60*time.Second); err != nil {
			return false, err
		}

		if r.optional(ctx, "continue_in_browser", teamsContinueInBrowserProbes, click) {
			if err := r.settle(ctx, 5*time.Second); err != nil {
				return false, err
			}
		}

		if err := r.mandatory(ctx, "name_input", teamsNameProbes, typeText(req.DisplayName, true)); err != nil {
			return false, err
		}

		r.toggle(ctx, "microphone_toggle", teamsMicProbes, req.Media.MicrophoneEnabled, ariaChecked)
		r.toggle(ctx, "camera_toggle", teamsCameraProbes, req.Media.CameraEnabled, ariaChecked)

		if err := r.mandatory(ctx, "join_click", teamsJoinProbes, click); err != nil {
			return false, err
		}
		if err := r.settle(ctx, 5*time.Second); err != nil {
			return false, err
		}

		return r.confirm(ctx, teamsRejections, teamsLandmarks, v.confirmTimeout(teamsConfirmTimeout))
	})
}

// ariaChecked reads toggle state from aria-checked or aria-pressed.
func ariaChecked(ctx context.Context, el browser.Element) (bool, error) {
	for _, name := range []string{"aria-checked", "aria-pressed"} {
		value, ok, err := el.Attribute(ctx, name)
		if err != nil {
			return false, err
		} else if ok {
			return value == "true", nil
		}
	}
	return false, nil
}

package adapters

import (
	"context"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

var (
	meetConsentProbes = []Probe{
		probe(browser.CSS(`button[aria-label="Use microphone and camera"]`), 7*time.Second),
	}
	meetMediaPermissionProbes = []Probe{
		probe(browser.CSS(`button[aria-label="Allow microphone and camera access now"]`), 3*time.Second),
		probe(browser.ButtonWithText("Allow while visiting the site", "Allow this time"), 500*time.Millisecond),
	}
	meetSignInProbes = []Probe{
		probe(browser.CSS(`button[aria-label="Got it"]`), 5*time.Second),
	}
	meetNameProbes = []Probe{
		probe(browser.CSS(`input[aria-label="Your name"], input[placeholder="Your name"], input[data-initial-value]`), 10*time.Second),
	}
	meetMicProbes = []Probe{
		probe(browser.CSS(`div[role="button"][data-promo-tooltip*="microphone"], button[aria-label*="microphone"]`), 5*time.Second),
	}
	meetCameraProbes = []Probe{
		probe(browser.CSS(`div[role="button"][data-promo-tooltip*="camera"], button[aria-label*="camera"]`), 5*time.Second),
	}
	meetJoinProbes = []Probe{
		probe(browser.CSS(`button[aria-label="Join now"], button[aria-label="Ask to join"]`), 15*time.Second),
		probe(browser.ButtonWithText("Join now", "Ask to join"), time.Second),
	}
	meetSafetyDialogProbes = []Probe{
		probe(browser.CSS(`div[role="dialog"] button[aria-label="Got it"]`), 5*time.Second),
	}
	meetRejections = []Indicator{
		{
			Probe:     probe(browser.XPath(`//h1[contains(normalize-space(.), "You can't join this video call")]`), 0),
			Label:     "You can't join this video call",
			NeedsHost: true,
		},
		{
			Probe: probe(browser.XPath(`//*[contains(normalize-space(text()), "denied your request to join")]`), 0),
			Label: "Request to join denied",
		},
		{
			Probe: probe(browser.XPath(`//*[contains(normalize-space(text()), "You've been removed from the meeting")]`), 0),
			Label: "Removed from the meeting",
		},
	}
	meetLandmarks = []Probe{
		probe(browser.CSS(`[aria-label="More options"], [aria-label="Participants"], [data-tool-tip="More options"], [data-tool-tip="Participants"]`), 0),
	}
)

const meetConfirmTimeout = 10 * time.Second

type GoogleMeet struct {
	Base
}

func NewGoogleMeet(base Base) *GoogleMeet {
	return &GoogleMeet{Base: base}
}

func (v *GoogleMeet) Provider() models.Provider {
	return models.ProviderGoogleMeet
}

func (v *GoogleMeet) Join(ctx context.Context, req Request) (Result, error) {
	return v.join(ctx, v.Provider(), req, func(r *runner) (bool, error) {
		if err := r.navigate(ctx, req.Target.Link, 60*time.Second); err != nil {
			return false, err
		}

		if r.optional(ctx, "consent_click", meetConsentProbes, click) {
			if err := r.settle(ctx, 2*time.Second); err != nil {
				return false, err
			}
		}
		if r.optional(ctx, "allow_media_click", meetMediaPermissionProbes, click) {
			if err := r.settle(ctx, 1500*time.Millisecond); err != nil {
				return false, err
			}
		}
		if r.optional(ctx, "sign_in_got_it", meetSignInProbes, click) {
			if err := r.settle(ctx, time.Second); err != nil {
				return false, err
			}
		}

		if err := r.mandatory(ctx, "name_input", meetNameProbes, typeText(req.DisplayName, true)); err != nil {
			return false, err
		}
		if err := r.settle(ctx, 2*time.Second); err != nil {
			return false, err
		}

		r.toggle(ctx, "microphone_toggle", meetMicProbes, req.Media.MicrophoneEnabled, meetToggleState("microphone", "mic_off"))
		r.toggle(ctx, "camera_toggle", meetCameraProbes, req.Media.CameraEnabled, meetToggleState("camera", "videocam_off"))

		if err := r.mandatory(ctx, "join_click", meetJoinProbes, click); err != nil {
			return false, err
		}
		if err := r.settle(ctx, 5*time.Second); err != nil {
			return false, err
		}

		confirmed, err := r.confirm(ctx, meetRejections, meetLandmarks, v.confirmTimeout(meetConfirmTimeout))
		if err != nil {
			return false, err
		}
		r.optional(ctx, "safety_dialog_got_it", meetSafetyDialogProbes, click)
		return confirmed, nil
	})
}

// meetToggleState reads Meet's pre-join mic/camera buttons. The muted data
// attribute, the is-muted class and the "Turn on ..." label all mean off; an
// "..._off" material icon overrides an otherwise "on" reading.
func meetToggleState(noun, offIcon string) stateReader {
	return func(ctx context.Context, el browser.Element) (bool, error) {
		muted, _, err := el.Attribute(ctx, "data-is-muted")
		if err != nil {
			return false, err
		}
		class, _, err := el.Attribute(ctx, "class")
		if err != nil {
			return false, err
		}
		label, _, err := el.Attribute(ctx, "aria-label")
		if err != nil {
			return false, err
		}

		off := muted == "true" ||
			hasClass(class, "is-muted") ||
			strings.Contains(label, "Turn on "+noun)
		if off {
			return false, nil
		}

		text, err := el.Text(ctx)
		if err == nil && strings.Contains(text, offIcon) {
			return false, nil
		}
		return true, nil
	}
}

func hasClass(classList, class string) bool {
	for _, item := range strings.Fields(classList) {
		if item == class {
			return true
		}
	}
	return false
}

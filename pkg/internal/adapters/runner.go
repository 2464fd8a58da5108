package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

const (
	confirmPollTimeout  = 500 * time.Millisecond
	confirmPollInterval = time.Second
)

// Probe is one lookup strategy of a step. Probes of a step are tried in
// order and the first match wins.
type Probe struct {
	Selector browser.Selector
	Timeout  time.Duration
}

func probe(selector browser.Selector, timeout time.Duration) Probe {
	return Probe{Selector: selector, Timeout: timeout}
}

// Indicator is an element whose presence after the join action means the
// attempt was rejected.
type Indicator struct {
	Probe
	Label     string
	NeedsHost bool
}

// stateReader reports whether a media toggle is currently on.
type stateReader func(ctx context.Context, el browser.Element) (bool, error)

type runner struct {
	base        Base
	page        browser.Page
	provider    models.Provider
	diagnostics Diagnostics
	log         zerolog.Logger
	seq         int
}

func (r *runner) navigate(ctx context.Context, url string, timeout time.Duration) error {
	r.log.Info().Str("url", url).Msg("Navigating to meeting...")
	if err := r.page.Navigate(ctx, url, timeout); err != nil {
		return fmt.Errorf("%s: navigate to %s: %w", r.provider.DisplayText(), url, err)
	}
	r.snapshot(ctx, "initial_page_load")
	return nil
}

func (r *runner) settle(ctx context.Context, d time.Duration) error {
	return r.base.settle(ctx, d)
}

// find tries every probe in order. It returns browser.ErrNotFound if none of
// them matched within its own timeout.
func (r *runner) find(ctx context.Context, probes []Probe) (browser.Element, error) {
	for _, item := range probes {
		el, err := r.page.Find(ctx, item.Selector, browser.FindOptions{Visible: true, Timeout: item.Timeout})
		if err == nil {
			return el, nil
		} else if !errors.Is(err, browser.ErrNotFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, browser.ErrNotFound
}

// optional performs action when the element shows up. Absence and action
// failures are logged and swallowed. It reports whether the action ran.
func (r *runner) optional(ctx context.Context, step string, probes []Probe, action func(ctx context.Context, el browser.Element) error) bool {
	log := r.log.With().Str("step", step).Logger()

	el, err := r.find(ctx, probes)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			log.Debug().Msg("Optional element not found or already handled, skipping...")
		} else {
			log.Warn().Err(err).Msg("An error occurred when probing optional element, skipping...")
		}
		r.snapshot(ctx, step+"_skipped")
		return false
	}

	if err := action(ctx, el); err != nil {
		log.Warn().Err(err).Msg("An error occurred when acting on optional element, skipping...")
		r.snapshot(ctx, step+"_skipped")
		return false
	}
	r.snapshot(ctx, step)
	return true
}

// mandatory fails the whole join when the element never shows up.
func (r *runner) mandatory(ctx context.Context, step string, probes []Probe, action func(ctx context.Context, el browser.Element) error) error {
	el, err := r.find(ctx, probes)
	if errors.Is(err, browser.ErrNotFound) {
		r.snapshot(ctx, step+"_not_found")
		return &ElementNotFoundError{
			Provider: r.provider,
			Step:     step,
			Selectors: lo.Map(probes, func(item Probe, _ int) string {
				return item.Selector.String()
			}),
		}
	} else if err != nil {
		return fmt.Errorf("%s: %s: %w", r.provider.DisplayText(), step, err)
	}

	if err := action(ctx, el); err != nil {
		return fmt.Errorf("%s: %s: %w", r.provider.DisplayText(), step, err)
	}
	r.log.Debug().Str("step", step).Msg("Step accomplished")
	r.snapshot(ctx, step)
	return nil
}

// toggle clicks a media toggle only when its observed state differs from
// the desired one. A missing toggle is not an error. It reports whether a
// click happened.
func (r *runner) toggle(ctx context.Context, step string, probes []Probe, desired bool, read stateReader) bool {
	log := r.log.With().Str("step", step).Bool("desired", desired).Logger()

	el, err := r.find(ctx, probes)
	if err != nil {
		log.Warn().Err(err).Msg("Media toggle not found or could not be interacted with")
		r.snapshot(ctx, step+"_not_found")
		return false
	}

	current, err := read(ctx, el)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to read media toggle state, leaving it as is")
		r.snapshot(ctx, step+"_skipped")
		return false
	}
	if current == desired {
		log.Debug().Msg("Media toggle already in desired state")
		r.snapshot(ctx, step+"_skipped")
		return false
	}

	if err := el.Click(ctx); err != nil {
		log.Warn().Err(err).Msg("An error occurred when clicking media toggle")
		return false
	}
	log.Info().Bool("was", current).Msg("Media toggle switched")
	r.snapshot(ctx, step)
	return true
}

// confirm waits up to timeout for either a rejection indicator or an
// in-meeting landmark. Neither showing up is reported as (false, nil).
func (r *runner) confirm(ctx context.Context, rejections []Indicator, landmarks []Probe, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, indicator := range rejections {
			_, err := r.page.Find(ctx, indicator.Selector, browser.FindOptions{Visible: true, Timeout: confirmPollTimeout})
			if err == nil {
				r.snapshot(ctx, "rejection_displayed")
				return false, &AdmissionDeniedError{
					Provider:  r.provider,
					Indicator: indicator.Label,
					NeedsHost: indicator.NeedsHost,
				}
			} else if !errors.Is(err, browser.ErrNotFound) {
				return false, err
			}
		}

		for _, landmark := range landmarks {
			_, err := r.page.Find(ctx, landmark.Selector, browser.FindOptions{Visible: true, Timeout: confirmPollTimeout})
			if err == nil {
				r.log.Info().Msg("In-meeting landmark visible, join confirmed")
				r.snapshot(ctx, "successfully_in_meeting")
				return true, nil
			} else if !errors.Is(err, browser.ErrNotFound) {
				return false, err
			}
		}

		if !time.Now().Before(deadline) {
			r.log.Warn().Msg("Could not confirm meeting UI after joining, treating join as unconfirmed")
			r.snapshot(ctx, "possibly_stuck_after_join")
			return false, nil
		}
		if err := r.settle(ctx, confirmPollInterval); err != nil {
			return false, err
		}
	}
}

func (r *runner) snapshot(ctx context.Context, step string) {
	r.seq++
	label := fmt.Sprintf("%s_%02d_%s", r.provider, r.seq, step)
	png, err := r.page.Snapshot(ctx)
	if err != nil {
		r.log.Debug().Err(err).Str("label", label).Msg("Unable to take screenshot")
		return
	}
	r.diagnostics.Capture(label, png)
}

func click(ctx context.Context, el browser.Element) error {
	return el.Click(ctx)
}

func typeText(text string, clear bool) func(ctx context.Context, el browser.Element) error {
	return func(ctx context.Context, el browser.Element) error {
		if clear {
			if err := el.Clear(ctx); err != nil {
				return err
			}
		}
		return el.Type(ctx, text)
	}
}

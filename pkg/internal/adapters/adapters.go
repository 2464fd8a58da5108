// Package adapters drives a browser page from "meeting link opened" to
// "participant admitted" for each supported provider.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
)

var (
	ErrElementNotFound     = errors.New("element not found")
	ErrAdmissionDenied     = errors.New("admission denied")
	ErrUnsupportedProvider = errors.New("unsupported meeting provider")
)

// ElementNotFoundError reports a mandatory step whose element never appeared.
type ElementNotFoundError struct {
	Provider  models.Provider
	Step      string
	Selectors []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found after all attempts (%s)",
		e.Provider.DisplayText(), e.Step, strings.Join(e.Selectors, " | "))
}

func (e *ElementNotFoundError) Is(target error) bool {
	return target == ErrElementNotFound
}

// AdmissionDeniedError reports an explicit rejection indicator observed after
// the join action. NeedsHost separates "meeting not started / waiting for the
// host" from other rejections such as a denied request or an ended call.
type AdmissionDeniedError struct {
	Provider  models.Provider
	Indicator string
	NeedsHost bool
}

func (e *AdmissionDeniedError) Error() string {
	if e.NeedsHost {
		return fmt.Sprintf("%s: meeting not joinable (host admission required or meeting not started): %s",
			e.Provider.DisplayText(), e.Indicator)
	}
	return fmt.Sprintf("%s: admission denied: %s", e.Provider.DisplayText(), e.Indicator)
}

func (e *AdmissionDeniedError) Is(target error) bool {
	return target == ErrAdmissionDenied
}

type Request struct {
	Target      models.JoinTarget
	Media       models.MediaPreferences
	DisplayName string
	Diagnostics Diagnostics
}

// Result is handed to the caller on success; from then on the caller owns
// Page and must close it. Confirmed is false when neither a rejection nor an
// in-meeting landmark showed up before the confirmation timeout.
type Result struct {
	Page      browser.Page
	Confirmed bool
}

type Adapter interface {
	Provider() models.Provider
	Join(ctx context.Context, req Request) (Result, error)
}

// Set resolves adapters by provider.
type Set map[models.Provider]Adapter

func NewSet(adapters ...Adapter) Set {
	set := make(Set, len(adapters))
	for _, adapter := range adapters {
		set[adapter.Provider()] = adapter
	}
	return set
}

func (v Set) Resolve(provider models.Provider) (Adapter, error) {
	adapter, ok := v[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return adapter, nil
}

// Base carries what every provider adapter shares.
type Base struct {
	Driver browser.Driver
	Log    zerolog.Logger
	// Settle waits for the UI to react between steps. Nil means a real,
	// context-aware sleep.
	Settle func(ctx context.Context, d time.Duration) error
	// ConfirmTimeout bounds the post-join wait for a rejection or a landmark.
	// Zero uses the provider default.
	ConfirmTimeout time.Duration
}

func (v Base) confirmTimeout(fallback time.Duration) time.Duration {
	if v.ConfirmTimeout > 0 {
		return v.ConfirmTimeout
	}
	return fallback
}

func (v Base) settle(ctx context.Context, d time.Duration) error {
	if v.Settle != nil {
		return v.Settle(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// join opens a page, runs the provider sequence and hands the page over on
// success. On any failure the page is snapshotted and closed here.
func (v Base) join(ctx context.Context, provider models.Provider, req Request, sequence func(r *runner) (bool, error)) (Result, error) {
	page, err := v.Driver.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%s: open browser: %w", provider.DisplayText(), err)
	}

	diagnostics := req.Diagnostics
	if diagnostics == nil {
		diagnostics = NopDiagnostics{}
	}
	r := &runner{
		base:        v,
		page:        page,
		provider:    provider,
		diagnostics: diagnostics,
		log:         v.Log.With().Str("provider", string(provider)).Logger(),
	}

	confirmed, err := sequence(r)
	if err != nil {
		r.log.Error().Err(err).Msg("An error occurred when joining meeting, closing browser...")
		r.snapshot(context.WithoutCancel(ctx), "fatal_error_state")
		if cerr := page.Close(); cerr != nil {
			r.log.Warn().Err(cerr).Msg("Unable to close browser after failed join")
		}
		return Result{}, err
	}

	return Result{Page: page, Confirmed: confirmed}, nil
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

const defaultOpTimeout = 10 * time.Second

type ChromeDriver struct {
	Headless bool
	ExecPath string
	Width    int
	Height   int
}

func (v *ChromeDriver) Open(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", v.Headless),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.NoSandbox,
	)
	if v.Width > 0 && v.Height > 0 {
		opts = append(opts, chromedp.WindowSize(v.Width, v.Height))
	}
	if v.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(v.ExecPath))
	}

	// The browser outlives the request that opened it, so it hangs off the
	// background context and is only torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	}))

	page := &chromePage{ctx: tabCtx, cancel: func() {
		tabCancel()
		allocCancel()
	}}

	runCtx, cancel := page.scope(ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx); err != nil {
		page.cancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return page, nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// scope derives an operation context from the tab context that is also
// cancelled when the caller's context is.
func (v *chromePage) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	runCtx, cancel := context.WithTimeout(v.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (v *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := v.scope(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

func (v *chromePage) Find(ctx context.Context, selector Selector, opts FindOptions) (Element, error) {
	runCtx, cancel := v.scope(ctx, opts.Timeout)
	defer cancel()

	queryOpts := []chromedp.QueryOption{chromedp.AtLeast(1)}
	if selector.Kind == SelectorXPath {
		queryOpts = append(queryOpts, chromedp.BySearch)
	} else {
		queryOpts = append(queryOpts, chromedp.ByQuery)
	}
	if opts.Visible {
		queryOpts = append(queryOpts, chromedp.NodeVisible)
	}

	if selector.Frame != "" {
		var frames []*cdp.Node
		if err := chromedp.Run(runCtx, chromedp.Nodes(selector.Frame, &frames, chromedp.ByQuery)); err != nil {
			return nil, translateFindErr(err)
		}
		queryOpts = append(queryOpts, chromedp.FromNode(frames[0]))
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(selector.Query, &nodes, queryOpts...)); err != nil {
		return nil, translateFindErr(err)
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}

	return &chromeElement{page: v, node: nodes[0]}, nil
}

func (v *chromePage) Snapshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := v.scope(ctx, 15*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (v *chromePage) Close() error {
	v.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(v.ctx, 5*time.Second)
		defer cancel()
		if err := chromedp.Cancel(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
			v.closeErr = err
		}
		v.cancel()
	})
	return v.closeErr
}

func translateFindErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrNotFound
	}
	return err
}

type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

func (v *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{v.node.NodeID}
}

func (v *chromeElement) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := v.page.scope(ctx, defaultOpTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (v *chromeElement) Click(ctx context.Context) error {
	return v.run(ctx, chromedp.MouseClickNode(v.node))
}

func (v *chromeElement) Clear(ctx context.Context) error {
	return v.run(ctx, chromedp.SetValue(v.ids(), "", chromedp.ByNodeID))
}

func (v *chromeElement) Type(ctx context.Context, text string) error {
	return v.run(ctx, chromedp.SendKeys(v.ids(), text, chromedp.ByNodeID))
}

func (v *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := v.run(ctx, chromedp.AttributeValue(v.ids(), name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

func (v *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := v.run(ctx, chromedp.Text(v.ids(), &text, chromedp.ByNodeID))
	return text, err
}

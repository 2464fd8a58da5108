// Package browser abstracts the automation primitives the provider adapters
// need: open a page, find elements, click, type, read attributes and take
// snapshots.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Find when no element matched before the timeout.
var ErrNotFound = errors.New("element not found")

type SelectorKind uint8

const (
	SelectorCSS = SelectorKind(iota)
	SelectorXPath
)

// Selector is one query. A CSS query may be a comma-separated selector set.
// Frame optionally names an iframe (CSS) whose document is searched instead
// of the top-level one.
type Selector struct {
	Query string
	Kind  SelectorKind
	Frame string
}

func CSS(query string) Selector {
	return Selector{Query: query, Kind: SelectorCSS}
}

func XPath(query string) Selector {
	return Selector{Query: query, Kind: SelectorXPath}
}

// ButtonWithText matches a button whose trimmed text contains any of the given
// labels.
func ButtonWithText(labels ...string) Selector {
	query := "//button["
	for idx, label := range labels {
		if idx > 0 {
			query += " or "
		}
		query += "contains(normalize-space(.), " + xpathLiteral(label) + ")"
	}
	return XPath(query + "]")
}

// InFrame returns a copy of the selector that is evaluated inside frame.
func (v Selector) InFrame(frame string) Selector {
	v.Frame = frame
	return v
}

func (v Selector) String() string {
	if v.Frame != "" {
		return v.Frame + " >> " + v.Query
	}
	return v.Query
}

type FindOptions struct {
	Visible bool
	Timeout time.Duration
}

type Driver interface {
	Open(ctx context.Context) (Page, error)
}

// Page is one browser automation context. It is owned by exactly one session
// and must be closed once.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Find(ctx context.Context, selector Selector, opts FindOptions) (Element, error)
	Snapshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	Attribute(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
}

func xpathLiteral(value string) string {
	for _, r := range value {
		if r == '\'' {
			return `"` + value + `"`
		}
	}
	return "'" + value + "'"
}

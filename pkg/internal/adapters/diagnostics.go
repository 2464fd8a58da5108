package adapters

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Diagnostics receives write-only snapshots keyed by step label.
type Diagnostics interface {
	Capture(label string, png []byte)
}

type NopDiagnostics struct{}

func (NopDiagnostics) Capture(string, []byte) {}

// DirDiagnostics writes every snapshot as <Dir>/<label>.png.
type DirDiagnostics struct {
	Dir string
	Log zerolog.Logger
}

func (v DirDiagnostics) Capture(label string, png []byte) {
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		v.Log.Warn().Err(err).Str("dir", v.Dir).Msg("Unable to create screenshot directory")
		return
	}
	path := filepath.Join(v.Dir, label+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		v.Log.Warn().Err(err).Str("path", path).Msg("Unable to write screenshot")
		return
	}
	v.Log.Debug().Str("path", path).Msg("Screenshot saved")
}

package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/config"
)

// Setup replaces the global logger. Console output is always kept; a rotating
// log file is added when logging.file is configured.
func Setup(settings config.LoggingSettings) (io.Closer, error) {
	level, err := zerolog.ParseLevel(settings.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stdout}
	if settings.File == "" {
		log.Logger = log.Output(console)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(settings.File), 0o755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   settings.File,
		MaxSize:    settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		Compress:   true,
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, rotator))
	return rotator, nil
}

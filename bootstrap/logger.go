package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/artpar/costledger/config"
)

// NewLogger builds the process logger from cfg. Logs go to w (stderr when
// nil) unless cfg.File is set, in which case they are written to a rotating
// file. The returned closer releases the file and is never nil.
//
// The level is applied globally so a config reload can change it with
// SetLogLevel.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, io.Closer) {
	SetLogLevel(cfg.Level)

	var closer io.Closer = nopCloser{}
	out := w
	if out == nil {
		out = os.Stderr
	}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out, closer = rotating, rotating
	}

	if cfg.Format == "console" && cfg.File == "" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger(), closer
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer
}

// SetLogLevel sets the global level. Unknown levels fall back to warn.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process-wide logger. Every line is stamped with the
// local instance code so logs shipped from multiple coalition instances can
// be told apart. JSON output is the default; console format is for local
// development only. Audit records share this logger, so the level should
// never be raised above info in production.
func NewLogger(cfg LoggingConfig, instance string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("instance", instance).
		Logger()
	log.Logger = logger
	return logger
}

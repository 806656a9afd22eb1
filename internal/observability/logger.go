package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerOptions configures the process-wide structured logger.
type LoggerOptions struct {
	Level   string
	File    string
	AppName string
}

// NewLogger builds a JSON zerolog logger writing to stdout and, when File is
// set, to a size-rotated log file.
func NewLogger(opts LoggerOptions) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		writer io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(os.Stdout, rotating)
		closer = rotating
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Str("app", opts.AppName).Logger()
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

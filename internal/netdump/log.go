package netdump

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the logger described by cfg. The returned closer
// releases the log file, if any.
func NewLogger(cfg LogConfig) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "netdump: log level")
	}

	log := logrus.New()
	log.SetLevel(level)
	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, errors.Errorf("netdump: unknown log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Enabled {
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, file))
		closer = file
	}
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

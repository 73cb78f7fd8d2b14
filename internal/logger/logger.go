// Package logger configures the process-wide logrus logger and bridges gin's
// output into it.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Config controls level, format and destination of log output.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
	// Output is console, file or both.
	Output string `mapstructure:"output"`
	// FilePath is used when Output includes a file.
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfig returns console text logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Format:   "text",
		Output:   "console",
		FilePath: "logs/recordstore.log",
	}
}

// New builds a logger from cfg. Invalid level or format values fall back to
// the defaults with a warning.
func New(cfg Config) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		l.Warnf("invalid log level %q, using info", cfg.Level)
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
		l.Warnf("invalid log format %q, using text", cfg.Format)
	}

	out, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)
	return l, nil
}

func openOutput(cfg Config) (io.Writer, error) {
	switch cfg.Output {
	case "file", "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		if cfg.Output == "both" {
			return io.MultiWriter(os.Stdout, f), nil
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

// BridgeGin routes gin's default writers through l.
func BridgeGin(l *logrus.Logger) {
	w := &ginWriter{logger: l}
	gin.DefaultWriter = w
	gin.DefaultErrorWriter = w
}

type ginWriter struct {
	logger *logrus.Logger
}

func (w *ginWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}

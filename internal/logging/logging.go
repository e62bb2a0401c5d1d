// Package logging configures the process-wide zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created inside the log directory.
const FileName = "voyager.log"

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init builds a development logger at level writing to stderr and, when dir
// is non-empty, to dir/voyager.log. The logger replaces zap's globals.
func Init(level, dir string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level.SetLevel(ParseLevel(level))
	cfg.OutputPaths = []string{"stderr"}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create %s: %w", dir, err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(dir, FileName))
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Debug("log level set", zap.String("level", ParseLevel(level).String()))
	return logger, nil
}

// L returns the global logger.
func L() *zap.Logger { return zap.L() }

// S returns the global sugared logger.
func S() *zap.SugaredLogger { return zap.S() }

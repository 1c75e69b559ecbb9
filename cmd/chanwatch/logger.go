package main

import (
	"github.com/25smoking/chanwatch/internal/config"
	"go.uber.org/zap"
)

const defaultTUILogFile = "chanwatch.log"

// newLogger builds the process logger. When the TUI owns the terminal, logs
// go to a file.
func newLogger(cfg config.LogConfig, tui bool) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	zc.Level = level

	file := cfg.File
	if file == "" && tui {
		file = defaultTUILogFile
	}
	if file != "" {
		zc.OutputPaths = []string{file}
		zc.ErrorOutputPaths = []string{file}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

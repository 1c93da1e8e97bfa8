package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const defaultLogFileName = "examforge.log"

// InitLogger builds the run logger from the logging section of config.
// A log directory that cannot be created drops the file writer with a warning on stderr.
func InitLogger(config *Config) arbor.ILogger {
	cfg := config.Logging
	logger := arbor.NewLogger()

	if hasOutput(cfg, "file") {
		path := LogFilePath(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create logs directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(fileWriterConfig(cfg, path))
		}
	}

	if hasOutput(cfg, "stdout", "console") {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat(cfg),
			OutputType: models.OutputFormatLogfmt,
		})
	}

	return logger.WithLevelFromString(cfg.Level)
}

// LogFilePath resolves the log file location. An empty directory means "logs"
// next to the executable, or under the working directory when that is unknown.
func LogFilePath(cfg LoggingConfig) string {
	dir := cfg.Directory
	if dir == "" {
		dir = "logs"
		if execPath, err := os.Executable(); err == nil {
			dir = filepath.Join(filepath.Dir(execPath), "logs")
		}
	}
	name := cfg.FileName
	if name == "" {
		name = defaultLogFileName
	}
	return filepath.Join(dir, name)
}

func fileWriterConfig(cfg LoggingConfig, path string) models.WriterConfiguration {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		TimeFormat: timeFormat(cfg),
		MaxSize:    int64(maxSize) * 1024 * 1024,
		MaxBackups: cfg.MaxBackups,
		OutputType: models.OutputFormatLogfmt,
	}
}

func timeFormat(cfg LoggingConfig) string {
	if cfg.TimeFormat == "" {
		return "15:04:05"
	}
	return cfg.TimeFormat
}

func hasOutput(cfg LoggingConfig, names ...string) bool {
	for _, output := range cfg.Output {
		for _, name := range names {
			if output == name {
				return true
			}
		}
	}
	return false
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/common"
)

var (
	// Command-line flags
	configFiles []string
	logLevel    string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "examforge",
	Short: "Extract multiple-choice questions from PDF exams",
	Long: `examforge reads a PDF exam or question bank and produces an ordered,
numbered list of multiple-choice questions with explanations and reference links.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by every command:
// .env -> defaults -> config files -> env -> flags, then the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load() // .env is optional

	if len(configFiles) == 0 {
		if _, err := os.Stat("examforge.toml"); err == nil {
			configFiles = append(configFiles, "examforge.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("log_file", common.LogFilePath(config.Logging)).
		Strs("models", config.LLM.Models).
		Msg("Configuration loaded")

	return nil
}

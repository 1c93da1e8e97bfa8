package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/examforge/internal/app"
	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured model chain and backends",
	RunE:  runStatus,
}

var statusModels []string

func init() {
	statusCmd.Flags().StringSliceVar(&statusModels, "models", nil, "Model fallback chain to inspect")
}

type modelEntry struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
}

type statusReport struct {
	Version  string                `yaml:"version"`
	Backends []string              `yaml:"backends"`
	OCR      bool                  `yaml:"ocr_enabled"`
	Chain    []modelEntry          `yaml:"chain"`
	Fallback models.FallbackStatus `yaml:"fallback"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	common.ApplyFlagOverrides(config, "", statusModels)

	application, err := app.New(context.Background(), config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	report := statusReport{
		Version:  common.GetVersion(),
		Backends: []string{},
		OCR:      config.OCR.Enabled,
		Fallback: application.Client.Status(),
	}
	if application.Gemini != nil {
		report.Backends = append(report.Backends, string(llm.ProviderGemini))
	}
	if application.Claude != nil {
		report.Backends = append(report.Backends, string(llm.ProviderClaude))
	}
	for _, model := range config.LLM.Models {
		report.Chain = append(report.Chain, modelEntry{
			Model:    llm.NormalizeModel(model),
			Provider: string(application.Router.DetectProvider(model)),
		})
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return enc.Close()
}

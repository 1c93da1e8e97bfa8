package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/examforge/internal/app"
	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/pipeline"
	"gopkg.in/yaml.v3"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract questions from a PDF",
	Long: `Extracts multiple-choice questions from a PDF document.

Pages are processed in order. Without an API key the pattern extractor is used and
every question is flagged for review.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

var (
	extractFile     string
	extractPage     int
	extractMode     string
	extractStrategy string
	extractStart    int
	extractAPIKey   string
	extractModels   []string
	extractFormat   string
	extractOut      string
	extractQuiet    bool
)

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "PDF file to process")
	extractCmd.Flags().IntVarP(&extractPage, "page", "p", 0, "Process a single page (0 processes every page)")
	extractCmd.Flags().StringVar(&extractMode, "mode", string(pipeline.ModeWithImages), "Processing mode: text-only or with-images")
	extractCmd.Flags().StringVar(&extractStrategy, "strategy", string(pipeline.StrategyPerPage), "Extraction strategy: per-page or direct")
	extractCmd.Flags().IntVar(&extractStart, "start", 1, "Number assigned to the first question")
	extractCmd.Flags().StringVar(&extractAPIKey, "api-key", "", "Gemini API key (overrides config and environment)")
	extractCmd.Flags().StringSliceVar(&extractModels, "models", nil, "Model fallback chain, most capable first")
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "Output format: json or yaml")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "Write output to a file instead of stdout")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "Do not render progress")
}

func runExtract(cmd *cobra.Command, args []string) error {
	path := extractFile
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no input file: pass --file or a positional argument")
	}
	format := strings.ToLower(extractFormat)
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported output format %q", extractFormat)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	common.ApplyFlagOverrides(config, extractAPIKey, extractModels)
	if err := common.Validate().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	if !application.HasBackend() {
		logger.Warn().Msg("No API key configured, using the pattern extractor only")
	}

	req := pipeline.Request{
		Document:       content,
		Filename:       filepath.Base(path),
		Page:           extractPage,
		Mode:           pipeline.Mode(extractMode),
		Strategy:       pipeline.Strategy(extractStrategy),
		StartingNumber: extractStart,
	}

	progress := make(chan models.ProgressEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if extractQuiet {
			for range progress {
			}
			return
		}
		renderProgress(os.Stderr, progress)
	}()

	result, runErr := application.Run(ctx, req, progress)
	close(progress)
	<-done

	if result != nil {
		if err := writeResult(result, format); err != nil {
			return err
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
		}
	}
	if runErr != nil {
		return fmt.Errorf("extraction failed: %w", runErr)
	}
	return nil
}

func writeResult(result *models.RunResult, format string) error {
	var w io.Writer = os.Stdout
	if extractOut != "" {
		f, err := os.Create(extractOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", extractOut, err)
		}
		defer f.Close()
		w = f
	}
	return encodeResult(w, result, format)
}

func encodeResult(w io.Writer, result *models.RunResult, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

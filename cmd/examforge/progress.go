package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/ternarybob/examforge/internal/models"
)

// progressPhase groups stages that share one bar
type progressPhase string

const (
	phaseDocument  progressPhase = "document"
	phasePages     progressPhase = "pages"
	phaseQuestions progressPhase = "questions"
)

func phaseOf(stage models.ProgressStage) progressPhase {
	switch stage {
	case models.StageClassifying, models.StageExtracting, models.StageOCR:
		return phasePages
	case models.StageEnhancing, models.StageComplete:
		return phaseQuestions
	default:
		return phaseDocument
	}
}

// renderProgress draws one bar per phase until the stream closes
func renderProgress(w io.Writer, events <-chan models.ProgressEvent) {
	var bar *progressbar.ProgressBar
	var current progressPhase

	for ev := range events {
		phase := phaseOf(ev.Stage)
		if bar == nil || phase != current {
			if bar != nil {
				_ = bar.Finish()
			}
			bar = newBar(w, phase, ev.Total)
			current = phase
		}

		bar.Describe(fmt.Sprintf("%-10s %s", ev.Stage, ev.Message))
		if ev.Total > 0 {
			bar.ChangeMax(ev.Total)
			_ = bar.Set(ev.Current)
		} else {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
}

func newBar(w io.Writer, phase progressPhase, total int) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1 // spinner
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString(string(phase)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

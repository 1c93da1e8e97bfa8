package models

import "context"

// ProgressStage identifies the pipeline step a progress event belongs to
type ProgressStage string

const (
	StageLoading     ProgressStage = "loading"
	StageClassifying ProgressStage = "classifying"
	StageExtracting  ProgressStage = "extracting"
	StageOCR         ProgressStage = "ocr"
	StageUploading   ProgressStage = "uploading"
	StagePolling     ProgressStage = "polling"
	StageGenerating  ProgressStage = "generating"
	StageEnhancing   ProgressStage = "processing"
	StageComplete    ProgressStage = "complete"
)

// ProgressEvent is emitted on the progress stream and never stored.
// Current is a page number during extraction and a question position during enhancement.
type ProgressEvent struct {
	Stage        ProgressStage `json:"stage"`
	Current      int           `json:"current"`
	Total        int           `json:"total"`
	Message      string        `json:"message"`
	QuestionText string        `json:"question_text,omitempty"`
}

// FallbackStatus is a read-only view of a fallback client's model cursor
type FallbackStatus struct {
	CurrentModel      string   `json:"current_model" yaml:"current_model"`
	CurrentModelIndex int      `json:"current_model_index" yaml:"current_model_index"`
	TotalModels       int      `json:"total_models" yaml:"total_models"`
	RemainingModels   int      `json:"remaining_models" yaml:"remaining_models"`
	AvailableModels   []string `json:"available_models" yaml:"available_models"`
}

// RunResult is the aggregated outcome of one pipeline run
type RunResult struct {
	Questions []Question     `json:"questions" yaml:"questions"`
	Errors    []string       `json:"errors" yaml:"errors"`
	Pages     []PageReport   `json:"pages,omitempty" yaml:"pages,omitempty"`
	Fallback  FallbackStatus `json:"fallback" yaml:"fallback"`
}

// Emit sends an event on the progress stream. A nil stream is ignored and a
// cancelled context abandons the send.
func Emit(ctx context.Context, progress chan<- ProgressEvent, event ProgressEvent) {
	if progress == nil {
		return
	}
	select {
	case progress <- event:
	case <-ctx.Done():
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/examforge/internal/models"
	"gopkg.in/yaml.v3"
)

func sampleResult() *models.RunResult {
	return &models.RunResult{
		Questions: []models.Question{{
			QuestionNumber: 12,
			QuestionText:   "What is 2+2?",
			Options: []models.Option{
				{Letter: "A", Text: "3"},
				{Letter: "B", Text: "4", IsCorrect: true},
			},
			Explanation: "Arithmetic.",
			Link:        "https://example.com/math",
		}},
		Errors: []string{"page 2: page unreadable"},
	}
}

func TestEncodeResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeResult(&buf, sampleResult(), "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	questions := decoded["questions"].([]any)
	require.Len(t, questions, 1)
	q := questions[0].(map[string]any)
	for _, key := range []string{"question_number", "question_text", "options", "requires_multiple_answers", "explanation", "link"} {
		assert.Contains(t, q, key)
	}
	assert.EqualValues(t, 12, q["question_number"])
	assert.Equal(t, []any{"page 2: page unreadable"}, decoded["errors"])
}

func TestEncodeResult_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeResult(&buf, sampleResult(), "yaml"))

	var decoded models.RunResult
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleResult().Questions, decoded.Questions)
	assert.Contains(t, buf.String(), "question_number: 12")
}

func TestPhaseOf(t *testing.T) {
	tests := map[models.ProgressStage]progressPhase{
		models.StageLoading:     phaseDocument,
		models.StageUploading:   phaseDocument,
		models.StagePolling:     phaseDocument,
		models.StageGenerating:  phaseDocument,
		models.StageClassifying: phasePages,
		models.StageExtracting:  phasePages,
		models.StageOCR:         phasePages,
		models.StageEnhancing:   phaseQuestions,
		models.StageComplete:    phaseQuestions,
	}
	for stage, want := range tests {
		assert.Equal(t, want, phaseOf(stage), "stage %s", stage)
	}
}

func TestRenderProgress_DrainsStream(t *testing.T) {
	events := make(chan models.ProgressEvent, 4)
	events <- models.ProgressEvent{Stage: models.StageLoading, Message: "Loading exam.pdf"}
	events <- models.ProgressEvent{Stage: models.StageClassifying, Current: 1, Total: 2, Message: "Classifying page 1 of 2"}
	events <- models.ProgressEvent{Stage: models.StageEnhancing, Current: 1, Total: 1, Message: "Processed question 1 of 1"}
	events <- models.ProgressEvent{Stage: models.StageComplete, Current: 1, Total: 1}
	close(events)

	var buf bytes.Buffer
	renderProgress(&buf, events)

	assert.NotEmpty(t, buf.String())
	assert.Empty(t, events)
}

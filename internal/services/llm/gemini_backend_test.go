package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/examforge/internal/interfaces"
	"google.golang.org/genai"
)

func TestToFileRef_States(t *testing.T) {
	tests := []struct {
		state genai.FileState
		want  interfaces.FileState
	}{
		{genai.FileStateActive, interfaces.FileStateReady},
		{genai.FileStateProcessing, interfaces.FileStateProcessing},
		{"", interfaces.FileStateProcessing},
		{genai.FileStateFailed, interfaces.FileStateFailed},
		{genai.FileStateUnspecified, interfaces.FileStateFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			ref := toFileRef(&genai.File{Name: "files/exam", URI: "https://files.example/exam", MIMEType: "application/pdf", State: tt.state})
			assert.Equal(t, tt.want, ref.State)
			assert.Equal(t, "files/exam", ref.Name)
		})
	}
}

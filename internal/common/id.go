package common

import (
	"github.com/google/uuid"
)

// NewQuestionID generates a unique question ID with the "q_" prefix
// Format: q_<uuid>
func NewQuestionID() string {
	return "q_" + uuid.New().String()
}

// questionNamespace scopes content-derived question ids
var questionNamespace = uuid.MustParse("6f1b7c2e-4a8d-5e3f-9b20-7d1c4e6a8f90")

// StableQuestionID derives a question ID from content, so identical input
// always yields the same ID. Format: q_<uuid v5>
func StableQuestionID(parts ...string) string {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
		b = append(b, 0)
	}
	return "q_" + uuid.NewSHA1(questionNamespace, b).String()
}

package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// questionSchema is the minimal shape a raw question object must have before conversion.
// Only the question text and the option list are checked here. Optional fields
// (letters, correctness flags, confidence, explanation, link) are coerced or ignored
// during conversion, so a mistyped optional value never drops the question.
const questionSchema = `{
  "type": "object",
  "required": ["question_text", "options"],
  "properties": {
    "question_text": {"type": "string", "minLength": 1},
    "options": {
      "type": "array",
      "items": {"type": "object"}
    }
  }
}`

// enhancementSchema is the envelope returned by the enhancement prompt
const enhancementSchema = `{
  "type": "object",
  "properties": {
    "explanation": {"type": ["string", "null"]},
    "link": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce       sync.Once
	compiledQuestion *jsonschema.Schema
	compiledEnvelope *jsonschema.Schema
	schemaErr        error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("question.json", strings.NewReader(questionSchema)); err != nil {
		schemaErr = fmt.Errorf("add question schema: %w", err)
		return
	}
	if err := compiler.AddResource("enhancement.json", strings.NewReader(enhancementSchema)); err != nil {
		schemaErr = fmt.Errorf("add enhancement schema: %w", err)
		return
	}
	if compiledQuestion, schemaErr = compiler.Compile("question.json"); schemaErr != nil {
		schemaErr = fmt.Errorf("compile question schema: %w", schemaErr)
		return
	}
	if compiledEnvelope, schemaErr = compiler.Compile("enhancement.json"); schemaErr != nil {
		schemaErr = fmt.Errorf("compile enhancement schema: %w", schemaErr)
	}
}

// ValidateRawQuestion checks a decoded JSON value against the question schema
func ValidateRawQuestion(v any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	if err := compiledQuestion.Validate(v); err != nil {
		return fmt.Errorf("question does not match schema: %w", err)
	}
	return nil
}

// ValidateEnvelope checks a decoded enhancement envelope
func ValidateEnvelope(v any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	if err := compiledEnvelope.Validate(v); err != nil {
		return fmt.Errorf("envelope does not match schema: %w", err)
	}
	return nil
}

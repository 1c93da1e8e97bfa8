package llm

import (
	"fmt"
	"strings"
)

const questionFormat = `Return ONLY a JSON array. Each element must have this shape:
{
  "question_text": "the full question stem",
  "options": [
    {"option_letter": "A", "option_text": "first choice", "is_correct": false},
    {"option_letter": "B", "option_text": "second choice", "is_correct": true}
  ],
  "requires_multiple_answers": false,
  "explanation": "why the correct answer is correct, or empty",
  "link": "an authoritative reference URL, or empty"
}
Rules:
- Keep the questions in the order they appear.
- Copy question and option text verbatim; do not invent questions or options.
- Mark is_correct only when the document indicates the answer; otherwise leave all false.
- Set requires_multiple_answers to true when more than one option is correct or the question asks to choose several.
- If there are no multiple-choice questions, return [].`

// QuestionExtractionPrompt builds the prompt for extracting questions from page text
func QuestionExtractionPrompt(pageText string) string {
	var b strings.Builder
	b.WriteString("You extract multiple-choice exam questions from text taken from one page of a PDF.\n")
	b.WriteString("The text may contain OCR errors, headers, footers and page numbers; ignore those.\n\n")
	b.WriteString(questionFormat)
	b.WriteString("\n\nPage text:\n\"\"\"\n")
	b.WriteString(strings.TrimSpace(pageText))
	b.WriteString("\n\"\"\"")
	return b.String()
}

// DocumentExtractionPrompt builds the prompt sent with an uploaded whole document
func DocumentExtractionPrompt() string {
	var b strings.Builder
	b.WriteString("The attached PDF is an exam or question bank. Extract every multiple-choice question in the document, ")
	b.WriteString("across all pages, including questions that appear inside images or scanned pages.\n\n")
	b.WriteString(questionFormat)
	return b.String()
}

// EnhancementPrompt asks for an explanation and reference link for one question
func EnhancementPrompt(questionText string, options []string, correct []string) string {
	var b strings.Builder
	b.WriteString("You are helping prepare study material for a multiple-choice exam question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(questionText))
	for _, o := range options {
		fmt.Fprintf(&b, "%s\n", o)
	}
	if len(correct) > 0 {
		fmt.Fprintf(&b, "Correct answer(s): %s\n", strings.Join(correct, ", "))
	}
	b.WriteString("\nReturn ONLY a JSON object of the form ")
	b.WriteString(`{"explanation": "2-4 sentences explaining the correct answer", "link": "one authoritative reference URL"}`)
	b.WriteString(".\nUse an empty string for link when no reliable reference exists.")
	return b.String()
}

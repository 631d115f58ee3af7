// Package answer turns retrieved context into a grounded answer: a prompt
// template plus a chat-completion Generator.
package answer

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

const defaultTemplate = `You are a study assistant. Answer questions using only the course notes below.

CONTEXT (from the notes):
{{.Context}}

QUESTION:
{{.Question}}

INSTRUCTIONS:
1. Use only information from the context.
2. Be clear and concise.
3. If the context does not contain the answer, say "I could not find this in the notes."
4. Cite the page you used, for example "According to page 5, ...".

ANSWER:`

// PromptBuilder renders the question and assembled context into one prompt.
// The template is parsed once at construction.
type PromptBuilder struct {
	tpl *template.Template
}

// NewPromptBuilder parses inline, or the file at path, or the built-in
// template when both are empty.
func NewPromptBuilder(inline, path string) (*PromptBuilder, error) {
	src := defaultTemplate
	if inline != "" {
		src = inline
	} else if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("prompt template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("answer").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt template parse: %w", err)
	}
	return &PromptBuilder{tpl: tpl}, nil
}

// DefaultPromptBuilder uses the built-in template.
func DefaultPromptBuilder() *PromptBuilder {
	b, err := NewPromptBuilder("", "")
	if err != nil {
		panic(err)
	}
	return b
}

func (b *PromptBuilder) Build(question, context string) (string, error) {
	var buf bytes.Buffer
	err := b.tpl.Execute(&buf, struct {
		Question string
		Context  string
	}{question, context})
	if err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	return buf.String(), nil
}

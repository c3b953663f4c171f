// Package notegen turns one outline node plus retrieved context into a
// validated note section, honoring the resolved style policy.
package notegen

import (
	"context"

	"github.com/studycompanion/core/internal/modules/outline"
)

// TextGenerator is the opaque text-generation capability. It may fail
// or time out; callers own retry policy.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// FigureRef is a resolved figure placeholder pointing back at the
// source material.
type FigureRef struct {
	Page    int    `json:"page"`
	Index   int    `json:"index"`
	Caption string `json:"caption"`
}

// Section is one generated note unit, corresponding 1:1 to an outline node.
type Section struct {
	SectionID    string           `json:"section_id"`
	Title        string           `json:"title"`
	Content      string           `json:"content"` // markdown
	Figures      []FigureRef      `json:"figures,omitempty"`
	Equations    []string         `json:"equations,omitempty"`
	Anchors      []outline.Anchor `json:"anchors,omitempty"`
	WordCount    int              `json:"word_count"`
	ExampleCount int              `json:"example_count"`
	Warnings     []string         `json:"warnings,omitempty"`
}

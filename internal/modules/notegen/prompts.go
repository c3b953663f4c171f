package notegen

import (
	"fmt"
	"strings"

	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/modules/style"
)

func languageLabel(language string) string {
	if language == "zh" {
		return "Simplified Chinese"
	}
	return "English"
}

func buildSystemPrompt(language string) string {
	return "You are a university course companion that rewrites lecture material into natural, " +
		"spoken-style study notes. Follow the outline, respect the style instructions, and ground " +
		"every claim in the supplied context. Output GitHub-flavoured Markdown. " +
		fmt.Sprintf("Write every heading, sentence and annotation in %s.", languageLabel(language))
}

func styleInstructions(p style.Policy) string {
	lines := []string{
		fmt.Sprintf("Target length %.1f-%.1fx the section baseline. %s", p.LengthRatio[0], p.LengthRatio[1], p.Coverage),
		p.Structure,
		p.SummaryGuide + " " + p.ExampleGuide,
		p.Voice + " " + p.Transition,
		p.Terminology + fmt.Sprintf(" Keep sentences around %d-%d words.", p.SentenceWords[0], p.SentenceWords[1]),
		p.AnalogyGuide,
		p.FigureCaption + " " + p.FormulaGuide,
		p.VariableGuide + " " + p.ConstraintGuide,
		fmt.Sprintf("Use at most %d display equations, each wrapped in $$...$$ on its own and fully closed.", p.EquationBudget),
		"When describing a figure or screenshot, insert the placeholder [FIG_PAGE_<page>_IDX_<index>: description] pointing back at the source.",
		"Bullets may emphasize steps or key points, but the section must read as a coherent narrative, not templated fragments.",
		"When the context lacks evidence, write 'to be filled in' instead of inventing data, derivations or citations.",
		"Examples, analogies and numbers must come from the given context; flag gaps rather than fabricating.",
	}
	var sb strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildSectionPrompt(node *outline.Node, p style.Policy, chunks []retrieval.Chunk, baselineWords int) string {
	minW, maxW := p.TargetWords(baselineWords)

	var ctx strings.Builder
	if len(chunks) == 0 {
		ctx.WriteString("(no retrieved material; rely on the outline summary and anchors below)\n")
		ctx.WriteString("Summary: " + node.Summary + "\n")
		for _, a := range node.Anchors {
			ctx.WriteString(fmt.Sprintf("Anchor: page %d %s %s\n", a.Page, a.Kind, a.Ref))
		}
	} else {
		for i, c := range chunks {
			ctx.WriteString(fmt.Sprintf("[context %d | page %d]\n%s\n\n", i+1, c.Anchor.Page, c.Text))
		}
	}

	return fmt.Sprintf(
		"Section title: %s\nOutline summary: %s\nTarget length: %d-%d words.\n\nStyle instructions:\n%s\nContext material:\n%s\n"+
			"Write the section now. Use only ## and ### headings, dashes for list items, and a single blank line between blocks. "+
			"Do not copy context paragraphs verbatim; reorganize them in your own words and drop page markers or noise.",
		node.Title, node.Summary, minW, maxW, styleInstructions(p), ctx.String(),
	)
}

// buildAdjustmentPrompt asks for a corrected rewrite after validation
// failed, naming the concrete deviations.
func buildAdjustmentPrompt(node *outline.Node, p style.Policy, draft string, issues []string, baselineWords int) string {
	minW, maxW := p.TargetWords(baselineWords)
	return fmt.Sprintf(
		"Your previous draft of section %q did not meet these requirements:\n- %s\n\n"+
			"Rewrite the section fixing exactly those points while keeping everything else intact. "+
			"The target length is %d-%d words. Keep the same Markdown conventions.\n\nPrevious draft:\n%s",
		node.Title, strings.Join(issues, "\n- "), minW, maxW, draft,
	)
}

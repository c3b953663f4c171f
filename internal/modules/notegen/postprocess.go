package notegen

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

var (
	figurePlaceholderRe = regexp.MustCompile(`\[FIG_PAGE_(\d+)_IDX_(\d+):\s*([^\]]*)\]`)
	blockEquationRe     = regexp.MustCompile(`\$\$([^$]+)\$\$`)
	// Delimiters must hug the content, so dollar amounts in prose
	// ("costs $5 and $10") are not mistaken for math.
	inlineEquationRe = regexp.MustCompile(`\$([^\s$](?:[^$\n]*[^\s$])?)\$`)

	exampleCues = []string{
		"例如", "比如", "举例", "示例", "例子", "案例",
		"for example", "for instance", "e.g.", "example:", "consider the case",
	}
	summaryCues = []string{
		"总结", "小结", "总之", "综上", "一句话", "核心要点",
		"in summary", "to summarize", "in short", "takeaway", "to sum up",
	}
)

var markdown = goldmark.New()

// analysis holds the measurable properties of one generated draft.
type analysis struct {
	Words      int
	Examples   int
	HasSummary bool
	Figures    []FigureRef
	Equations  []string
}

// analyze parses the draft as Markdown and measures it against the
// validation dimensions a style policy constrains.
func analyze(content string) analysis {
	src := []byte(content)
	plain := extractPlainText(src)

	a := analysis{
		Words:    countWords(plain),
		Examples: countExamples(plain),
	}
	a.HasSummary = detectSummary(src, plain)

	for _, m := range figurePlaceholderRe.FindAllStringSubmatch(content, -1) {
		page, _ := strconv.Atoi(m[1])
		idx, _ := strconv.Atoi(m[2])
		a.Figures = append(a.Figures, FigureRef{
			Page:    page,
			Index:   idx,
			Caption: strings.TrimSpace(m[3]),
		})
	}

	withoutBlocks := content
	for _, m := range blockEquationRe.FindAllStringSubmatch(content, -1) {
		a.Equations = append(a.Equations, strings.TrimSpace(m[1]))
		withoutBlocks = strings.Replace(withoutBlocks, m[0], "", 1)
	}
	for _, m := range inlineEquationRe.FindAllStringSubmatch(withoutBlocks, -1) {
		eq := strings.TrimSpace(m[1])
		if eq != "" {
			a.Equations = append(a.Equations, eq)
		}
	}

	return a
}

// extractPlainText walks the Markdown AST and joins its text segments,
// dropping syntax markers from the measurement.
func extractPlainText(src []byte) string {
	doc := markdown.Parser().Parse(gmtext.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// countWords counts CJK characters individually and latin-script runs
// as one word each, so both output languages measure comparably.
func countWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			if inWord {
				count++
				inWord = false
			}
			count++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			inWord = true
		default:
			if inWord {
				count++
				inWord = false
			}
		}
	}
	if inWord {
		count++
	}
	return count
}

func countExamples(plain string) int {
	lower := strings.ToLower(plain)
	count := 0
	for _, cue := range exampleCues {
		count += strings.Count(lower, cue)
	}
	return count
}

// detectSummary looks for a closing summary: either a heading named
// like a summary, or summary cues in the trailing quarter of the text.
func detectSummary(src []byte, plain string) bool {
	doc := markdown.Parser().Parse(gmtext.NewReader(src))
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title := strings.ToLower(string(headingText(h, src)))
			for _, cue := range summaryCues {
				if strings.Contains(title, cue) {
					found = true
					break
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if found {
		return true
	}

	runes := []rune(plain)
	tail := strings.ToLower(string(runes[len(runes)*3/4:]))
	for _, cue := range summaryCues {
		if strings.Contains(tail, cue) {
			return true
		}
	}
	return false
}

func headingText(h *ast.Heading, src []byte) []byte {
	var out []byte
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(src)...)
		}
	}
	return out
}

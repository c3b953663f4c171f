package notegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/studycompanion/core/internal/modules/retrieval"
	"github.com/studycompanion/core/internal/modules/style"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedGenerator returns queued responses or errors in order and
// records every prompt it receives.
type scriptedGenerator struct {
	responses []string
	errs      []error
	prompts   []string
	calls     int
}

func (s *scriptedGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

const testBaseline = 20

func briefPopular(t *testing.T) style.Policy {
	t.Helper()
	p, err := style.Resolve(style.DetailBrief, style.DifficultyPopular, "en")
	require.NoError(t, err)
	return p
}

func mediumStandard(t *testing.T) style.Policy {
	t.Helper()
	p, err := style.Resolve(style.DetailMedium, style.DifficultyStandard, "en")
	require.NoError(t, err)
	return p
}

// 13 words, no examples: conforming for brief/popular at baseline 20.
const briefDraft = "The Fourier transform maps signals into frequency space and reveals hidden structure quickly."

// 23 words, one example cue, summary heading: conforming for
// medium/standard at baseline 20.
const mediumDraft = "Convolution blends two signals smoothly. For example sliding one window across another shows the overlap.\n\n## Summary\nConvolution in time equals multiplication in frequency."

func testNode() *outline.Node {
	return &outline.Node{
		SectionID: "s1",
		Title:     "Fourier Transform",
		Summary:   "Mapping signals to the frequency domain.",
		Anchors:   []outline.Anchor{{Page: 7}},
	}
}

func TestGenerateConforming(t *testing.T) {
	tg := &scriptedGenerator{responses: []string{briefDraft}}
	gen := New(tg, testBaseline, zap.NewNop())

	chunks := []retrieval.Chunk{{ID: "c1", Text: "frequency domain material", Anchor: outline.Anchor{Page: 7}}}
	sec, err := gen.Generate(context.Background(), testNode(), briefPopular(t), chunks)
	require.NoError(t, err)

	assert.Equal(t, "s1", sec.SectionID)
	assert.Equal(t, briefDraft, sec.Content)
	assert.Empty(t, sec.Warnings)
	assert.Equal(t, 1, tg.calls, "conforming draft needs no retry")
	assert.Equal(t, []outline.Anchor{{Page: 7}}, sec.Anchors)
	assert.Equal(t, 13, sec.WordCount)
}

func TestGenerateWithEmptyRetrieval(t *testing.T) {
	tg := &scriptedGenerator{responses: []string{briefDraft}}
	gen := New(tg, testBaseline, zap.NewNop())

	sec, err := gen.Generate(context.Background(), testNode(), briefPopular(t), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sec.Content)
	require.Len(t, tg.prompts, 1)
	assert.Contains(t, tg.prompts[0], "Mapping signals to the frequency domain.",
		"prompt must fall back to the node summary")
}

func TestGenerateRetryFixesDraft(t *testing.T) {
	// First draft is far too short for medium/standard; rewrite conforms.
	tg := &scriptedGenerator{responses: []string{"Too short.", mediumDraft}}
	gen := New(tg, testBaseline, zap.NewNop())

	sec, err := gen.Generate(context.Background(), testNode(), mediumStandard(t), nil)
	require.NoError(t, err)
	assert.Equal(t, mediumDraft, sec.Content)
	assert.Empty(t, sec.Warnings)
	assert.Equal(t, 2, tg.calls)
	assert.Contains(t, tg.prompts[1], "did not meet these requirements")
}

func TestGenerateKeepsNonConformingDraft(t *testing.T) {
	// Both drafts violate the length band: kept with warnings, no error.
	tg := &scriptedGenerator{responses: []string{"Too short.", "Still too short."}}
	gen := New(tg, testBaseline, zap.NewNop())

	sec, err := gen.Generate(context.Background(), testNode(), mediumStandard(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Still too short.", sec.Content)
	assert.NotEmpty(t, sec.Warnings)
	assert.Equal(t, 2, tg.calls, "exactly one corrective attempt")
}

func TestGenerateKeepsDraftWhenRewriteErrors(t *testing.T) {
	boom := errors.New("upstream overloaded")
	tg := &scriptedGenerator{
		responses: []string{"Too short.", "", ""},
		errs:      []error{nil, boom, boom},
	}
	gen := New(tg, testBaseline, zap.NewNop())

	sec, err := gen.Generate(context.Background(), testNode(), mediumStandard(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Too short.", sec.Content)
	assert.NotEmpty(t, sec.Warnings)
}

func TestGenerateProviderRetry(t *testing.T) {
	tg := &scriptedGenerator{
		responses: []string{"", briefDraft},
		errs:      []error{errors.New("transient"), nil},
	}
	gen := New(tg, testBaseline, zap.NewNop())

	sec, err := gen.Generate(context.Background(), testNode(), briefPopular(t), nil)
	require.NoError(t, err)
	assert.Equal(t, briefDraft, sec.Content)
}

func TestGenerateHardFailure(t *testing.T) {
	boom := errors.New("model gone")
	tg := &scriptedGenerator{errs: []error{boom, boom}}
	gen := New(tg, testBaseline, zap.NewNop())

	_, err := gen.Generate(context.Background(), testNode(), briefPopular(t), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 2, tg.calls)
}

func TestAnalyzeMeasurements(t *testing.T) {
	content := "Energy relates to mass.\n\n" +
		"$$E = mc^2$$\n\n" +
		"The inline form $p = mv$ also appears. " +
		"[FIG_PAGE_3_IDX_0: loss curve over epochs]\n\n" +
		"## Summary\nMass and energy are interchangeable."

	res := analyze(content)
	assert.True(t, res.HasSummary)
	require.Len(t, res.Figures, 1)
	assert.Equal(t, FigureRef{Page: 3, Index: 0, Caption: "loss curve over epochs"}, res.Figures[0])
	require.Len(t, res.Equations, 2)
	assert.Equal(t, "E = mc^2", res.Equations[0])
	assert.Equal(t, "p = mv", res.Equations[1])
}

func TestAnalyzeIgnoresDollarAmounts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"prose prices", "A license costs $5 and $10 for the pro tier.", nil},
		{"price range", "Budget between $20 and $200 per month.", nil},
		{"math with spaces", "Recall that $x + y = z$ holds.", []string{"x + y = z"}},
		{"single symbol", "The variable $n$ counts samples.", []string{"n"}},
		{"price next to math", "It costs $5 today. Note $a=b$ though.", []string{"a=b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := analyze(tt.in)
			var got []string
			got = append(got, res.Equations...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountWordsMixedScript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"latin", "one two three", 3},
		{"cjk", "傅里叶变换", 5},
		{"mixed", "学习 Fourier 变换", 5},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countWords(tt.in))
		})
	}
}

func TestCountExamples(t *testing.T) {
	assert.Equal(t, 0, countExamples("plain statement"))
	assert.Equal(t, 2, countExamples("For example this. 比如那个。"))
}

func TestDetectSummaryCueInTail(t *testing.T) {
	body := strings.Repeat("filler sentence about signals. ", 10) + "In summary, filters shape spectra."
	res := analyze(body)
	assert.True(t, res.HasSummary)

	res = analyze("In summary first, then lots of other text. " + strings.Repeat("more filler content here. ", 20))
	assert.False(t, res.HasSummary, "summary cue must sit near the end")
}

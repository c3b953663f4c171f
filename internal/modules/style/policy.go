// Package style resolves the fixed 3x3 matrix of note-generation
// policies spanning detail level and difficulty.
package style

import (
	"errors"
	"fmt"
)

// DetailLevel controls how much of the source material a note covers.
type DetailLevel string

// Difficulty controls the register the note is written in.
type Difficulty string

const (
	DetailBrief    DetailLevel = "brief"
	DetailMedium   DetailLevel = "medium"
	DetailDetailed DetailLevel = "detailed"

	DifficultyPopular    Difficulty = "popular"
	DifficultyStandard   Difficulty = "standard"
	DifficultyInsightful Difficulty = "insightful"
)

// ErrInvalidStyle is returned for any axis value outside the enumerated sets.
var ErrInvalidStyle = errors.New("invalid style")

// Policy is the resolved, immutable parameter set for one
// (detail level, difficulty) pair. Numeric fields drive validation;
// the string fields feed the generation instructions.
type Policy struct {
	DetailLevel DetailLevel
	Difficulty  Difficulty
	Language    string

	// Detail axis.
	LengthRatio      [2]float64 // of the per-section word baseline
	RequiredExamples int
	RequireSummary   bool
	SummarySentences [2]int
	Coverage         string
	Structure        string
	FigureCaption    string
	SummaryGuide     string
	ExampleGuide     string

	// Difficulty axis.
	JargonPer100         [2]int
	SentenceWords        [2]int
	RequireAnalogy       bool
	EquationBudget       int
	RequireVariableTable bool
	RequireConstraints   bool
	Voice                string
	Terminology          string
	AnalogyGuide         string
	FormulaGuide         string
	VariableGuide        string
	ConstraintGuide      string
	Transition           string
}

// Key returns the canonical identifier of the pair, used in note ids.
func (p Policy) Key() string {
	return fmt.Sprintf("%s_%s", p.DetailLevel, p.Difficulty)
}

// TargetWords converts the policy's length band into absolute word
// bounds for a given baseline.
func (p Policy) TargetWords(baseline int) (min, max int) {
	min = int(float64(baseline) * p.LengthRatio[0])
	max = int(float64(baseline) * p.LengthRatio[1])
	return min, max
}

type detailParams struct {
	lengthRatio      [2]float64
	requiredExamples int
	requireSummary   bool
	summarySentences [2]int
	coverage         string
	structure        string
	figureCaption    string
	summaryGuide     string
	exampleGuide     string
}

type difficultyParams struct {
	jargonPer100         [2]int
	sentenceWords        [2]int
	requireAnalogy       bool
	equationBudget       int
	requireVariableTable bool
	requireConstraints   bool
	voice                string
	terminology          string
	analogyGuide         string
	formulaGuide         string
	variableGuide        string
	constraintGuide      string
	transition           string
}

var detailTable = map[DetailLevel]detailParams{
	DetailBrief: {
		lengthRatio:      [2]float64{0.6, 0.8},
		requiredExamples: 0,
		requireSummary:   false,
		summarySentences: [2]int{0, 1},
		coverage:         "Focus on conclusions, key definitions and memory hooks; skip derivation detail.",
		structure:        "Answer the student's core question directly in 3-4 short bullets or 1-2 compact paragraphs.",
		figureCaption:    "Describe each figure or formula in a single sentence stating its purpose or trend.",
		summaryGuide:     "The closing summary may be omitted; if present, keep it to one takeaway sentence.",
		exampleGuide:     "Avoid worked examples; when the source only offers one, condense it to a single conclusion.",
	},
	DetailMedium: {
		lengthRatio:      [2]float64{0.9, 1.1},
		requiredExamples: 1,
		requireSummary:   true,
		summarySentences: [2]int{1, 2},
		coverage:         "Cover conclusions, definitions and the core reasoning, naming key conditions where needed.",
		structure:        "Balance paragraphs with bullets and open paragraphs with linking cues to keep the flow.",
		figureCaption:    "Explain each figure or formula in 1-2 sentences covering its purpose and usage.",
		summaryGuide:     "End each section with a 1-2 sentence summary answering what was learned.",
		exampleGuide:     "Include at least one example or scenario highlighting the key steps or intuition.",
	},
	DetailDetailed: {
		lengthRatio:      [2]float64{1.4, 1.7},
		requiredExamples: 2,
		requireSummary:   true,
		summarySentences: [2]int{2, 4},
		coverage:         "Cover conclusions, definitions, reasoning, constraints and common pitfalls or experimental insights.",
		structure:        "Prefer paragraphs interleaved with lists, making causes, conditions and cross-page continuity explicit.",
		figureCaption:    "Spend 2-4 sentences per figure or formula on background, variable meaning and applicability.",
		summaryGuide:     "Close with a 2-4 sentence summary, optionally a checklist, including insight and next steps.",
		exampleGuide:     "Provide two or three in-depth examples, derivation steps or counterexamples with their conditions.",
	},
}

var difficultyTable = map[Difficulty]difficultyParams{
	DifficultyPopular: {
		jargonPer100:         [2]int{0, 2},
		sentenceWords:        [2]int{8, 14},
		requireAnalogy:       true,
		equationBudget:       1,
		requireVariableTable: false,
		requireConstraints:   false,
		voice:                "Use a warm, conversational voice; state the plain-language conclusion first, then explain why.",
		terminology:          "Use at most 2 technical terms per 100 words and immediately restate each in everyday language.",
		analogyGuide:         "Offer at least one everyday analogy or lived scenario per topic.",
		formulaGuide:         "Explain the intuition in words first, then introduce at most one key formula and the problem it solves.",
		variableGuide:        "Mention only the most important variable meanings, woven into sentences rather than listed.",
		constraintGuide:      "Call out only the most immediate usage caveat; skip elaborate assumptions.",
		transition:           "Favor spoken connectors such as 'put differently' and 'this means that'.",
	},
	DifficultyStandard: {
		jargonPer100:         [2]int{3, 6},
		sentenceWords:        [2]int{12, 20},
		requireAnalogy:       false,
		equationBudget:       2,
		requireVariableTable: false,
		requireConstraints:   true,
		voice:                "Keep a classroom lecture voice with clear logic and explicit steps.",
		terminology:          "Use 3-6 technical terms per 100 words, each followed by a one-sentence definition or purpose.",
		analogyGuide:         "Use a short analogy only for genuinely opaque concepts; otherwise explain by cause and steps.",
		formulaGuide:         "Introduce 1-2 necessary formulas, stating purpose or applicable conditions in the same sentence.",
		variableGuide:        "Define each variable's meaning, unit or range as soon as it appears.",
		constraintGuide:      "State at least one applicability condition or limitation per major concept.",
		transition:           "Maintain progression with connectors such as 'therefore', 'next' and 'building on the above'.",
	},
	DifficultyInsightful: {
		jargonPer100:         [2]int{6, 10},
		sentenceWords:        [2]int{16, 24},
		requireAnalogy:       false,
		equationBudget:       3,
		requireVariableTable: true,
		requireConstraints:   true,
		voice:                "Adopt a semi-academic voice emphasizing reasoning chains and stated premises.",
		terminology:          "Up to 6-10 technical terms per 100 words; standard names and theorem references are welcome.",
		analogyGuide:         "Replace everyday analogies with contrasts, counterexamples or conditional discussion.",
		formulaGuide:         "Present 2-3 formulas with derivation background, the role of each variable and known limits.",
		variableGuide:        "Provide a variable table, or enumerate symbol, meaning and unit/range in sequence.",
		constraintGuide:      "Write out 1-2 boundary conditions, assumptions or cases where the result does not apply.",
		transition:           "Use logical connectors such as 'under the condition that', 'hence' and 'in summary'.",
	},
}

// DefaultLanguage is used when a request omits the output language.
const DefaultLanguage = "zh"

// Resolve returns the policy for one (detail level, difficulty) pair.
// It is total over the 3x3 domain and deterministic; any value outside
// the enumerated sets yields ErrInvalidStyle.
func Resolve(detail DetailLevel, difficulty Difficulty, language string) (Policy, error) {
	dp, ok := detailTable[detail]
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown detail level %q", ErrInvalidStyle, detail)
	}
	tp, ok := difficultyTable[difficulty]
	if !ok {
		return Policy{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidStyle, difficulty)
	}
	if language == "" {
		language = DefaultLanguage
	}

	return Policy{
		DetailLevel: detail,
		Difficulty:  difficulty,
		Language:    language,

		LengthRatio:      dp.lengthRatio,
		RequiredExamples: dp.requiredExamples,
		RequireSummary:   dp.requireSummary,
		SummarySentences: dp.summarySentences,
		Coverage:         dp.coverage,
		Structure:        dp.structure,
		FigureCaption:    dp.figureCaption,
		SummaryGuide:     dp.summaryGuide,
		ExampleGuide:     dp.exampleGuide,

		JargonPer100:         tp.jargonPer100,
		SentenceWords:        tp.sentenceWords,
		RequireAnalogy:       tp.requireAnalogy,
		EquationBudget:       tp.equationBudget,
		RequireVariableTable: tp.requireVariableTable,
		RequireConstraints:   tp.requireConstraints,
		Voice:                tp.voice,
		Terminology:          tp.terminology,
		AnalogyGuide:         tp.analogyGuide,
		FormulaGuide:         tp.formulaGuide,
		VariableGuide:        tp.variableGuide,
		ConstraintGuide:      tp.constraintGuide,
		Transition:           tp.transition,
	}, nil
}

// VerifyTotality resolves every (detail, difficulty) pair and fails if
// any table entry is missing. Intended to run once at startup.
func VerifyTotality() error {
	for _, d := range DetailLevels() {
		for _, t := range Difficulties() {
			if _, err := Resolve(d, t, DefaultLanguage); err != nil {
				return err
			}
		}
	}
	return nil
}

// DetailLevels lists all valid detail levels.
func DetailLevels() []DetailLevel {
	return []DetailLevel{DetailBrief, DetailMedium, DetailDetailed}
}

// Difficulties lists all valid difficulty values.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyPopular, DifficultyStandard, DifficultyInsightful}
}

package style

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTotality(t *testing.T) {
	for _, detail := range DetailLevels() {
		for _, difficulty := range Difficulties() {
			p, err := Resolve(detail, difficulty, "zh")
			require.NoError(t, err, "pair (%s, %s)", detail, difficulty)
			assert.Equal(t, detail, p.DetailLevel)
			assert.Equal(t, difficulty, p.Difficulty)
			assert.Greater(t, p.LengthRatio[0], 0.0)
			assert.Greater(t, p.LengthRatio[1], p.LengthRatio[0])
			assert.GreaterOrEqual(t, p.SentenceWords[1], p.SentenceWords[0])
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	for _, detail := range DetailLevels() {
		for _, difficulty := range Difficulties() {
			a, err := Resolve(detail, difficulty, "en")
			require.NoError(t, err)
			b, err := Resolve(detail, difficulty, "en")
			require.NoError(t, err)
			assert.Equal(t, a, b, "pair (%s, %s)", detail, difficulty)
		}
	}
}

func TestResolveInvalidAxis(t *testing.T) {
	tests := []struct {
		name       string
		detail     DetailLevel
		difficulty Difficulty
	}{
		{"unknown detail", "verbose", DifficultyStandard},
		{"unknown difficulty", DetailMedium, "expert"},
		{"both unknown", "x", "y"},
		{"empty detail", "", DifficultyPopular},
		{"empty difficulty", DetailBrief, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.detail, tt.difficulty, "zh")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStyle))
		})
	}
}

func TestResolveDefaultLanguage(t *testing.T) {
	p, err := Resolve(DetailMedium, DifficultyStandard, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, p.Language)

	p, err = Resolve(DetailMedium, DifficultyStandard, "en")
	require.NoError(t, err)
	assert.Equal(t, "en", p.Language)
}

func TestPolicyAxisParameters(t *testing.T) {
	p, err := Resolve(DetailBrief, DifficultyPopular, "zh")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0.6, 0.8}, p.LengthRatio)
	assert.Zero(t, p.RequiredExamples)
	assert.False(t, p.RequireSummary)
	assert.True(t, p.RequireAnalogy)
	assert.Equal(t, 1, p.EquationBudget)
	assert.False(t, p.RequireVariableTable)

	p, err = Resolve(DetailDetailed, DifficultyInsightful, "zh")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{1.4, 1.7}, p.LengthRatio)
	assert.Equal(t, 2, p.RequiredExamples)
	assert.True(t, p.RequireSummary)
	assert.False(t, p.RequireAnalogy)
	assert.Equal(t, 3, p.EquationBudget)
	assert.True(t, p.RequireVariableTable)
	assert.True(t, p.RequireConstraints)
}

func TestPolicyKeyAndTargetWords(t *testing.T) {
	p, err := Resolve(DetailMedium, DifficultyPopular, "zh")
	require.NoError(t, err)
	assert.Equal(t, "medium_popular", p.Key())

	min, max := p.TargetWords(200)
	assert.Equal(t, 180, min)
	assert.Equal(t, 220, max)
}

func TestVerifyTotality(t *testing.T) {
	require.NoError(t, VerifyTotality())
}

package retrieval

import (
	"context"
	"testing"

	"github.com/studycompanion/core/internal/modules/outline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"latin words", "Fourier Transform basics", []string{"fourier", "transform", "basics"}},
		{"mixed case and punctuation", "FFT, fft; FFT!", []string{"fft", "fft", "fft"}},
		{"cjk bigrams", "傅里叶", []string{"傅", "傅里", "里叶"}},
		{"cjk latin mix", "傅里叶transform", []string{"傅", "傅里", "里叶", "transform"}},
		{"empty", "  \t ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestQueryRanksAndScopes(t *testing.T) {
	store := NewMemoryStore(Options{TopK: 2, MinScore: 0.1})
	ctx := context.Background()

	require.NoError(t, store.Ingest(ctx, "sess-a", []Chunk{
		{ID: "c1", Text: "The Fourier transform maps a signal into the frequency domain.", Anchor: outline.Anchor{Page: 7}},
		{ID: "c2", Text: "Convolution in time equals multiplication in frequency.", Anchor: outline.Anchor{Page: 9}},
		{ID: "c3", Text: "Lab safety rules and grading policy.", Anchor: outline.Anchor{Page: 1}},
	}))
	require.NoError(t, store.Ingest(ctx, "sess-b", []Chunk{
		{ID: "x1", Text: "Fourier transform cheat sheet from another course.", Anchor: outline.Anchor{Page: 2}},
	}))

	got, err := store.Query(ctx, "sess-a", "fourier transform frequency", 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "c1", got[0].ID)
	assert.LessOrEqual(t, len(got), 2)
	for _, c := range got {
		assert.NotEqual(t, "x1", c.ID, "results must stay inside the queried session")
		assert.GreaterOrEqual(t, c.Score, 0.1)
	}
}

func TestQueryEmptyOutcomes(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx := context.Background()

	// Unknown session: empty, not an error.
	got, err := store.Query(ctx, "nope", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	// No chunk clears the threshold.
	require.NoError(t, store.Ingest(ctx, "s", []Chunk{
		{ID: "c1", Text: "completely unrelated biology content"},
	}))
	got, err = store.Query(ctx, "s", "laplace transform poles", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Empty query text.
	got, err = store.Query(ctx, "s", "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryCancelledContext(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, store.Ingest(ctx, "s", []Chunk{{ID: "c1", Text: "fourier"}}))
	cancel()

	got, err := store.Query(ctx, "s", "fourier", 3)
	require.NoError(t, err)
	assert.Empty(t, got, "timeout and cancellation behave like an empty index")
}

func TestCountAndClear(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx := context.Background()

	require.NoError(t, store.Ingest(ctx, "s", []Chunk{{ID: "c1", Text: "a"}, {ID: "c2", Text: "b"}}))
	n, err := store.Count(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Clear(ctx, "s"))
	n, err = store.Count(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
}

package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/prepbot/pkg/models"
)

type fakeSource struct {
	items []models.Item
	err   error
}

func (f fakeSource) Distractors(_ context.Context, kind, excludeID string, n int) ([]models.Item, error) {
	var out []models.Item
	for _, item := range f.items {
		if item.Kind == kind && item.ID != excludeID && len(out) < n {
			out = append(out, item)
		}
	}
	return out, f.err
}

var target = models.Item{ID: "vocab:ubiquitous", Kind: "vocab", Prompt: "ubiquitous", Answer: "present everywhere"}

func TestBuildMultipleChoice(t *testing.T) {
	source := fakeSource{items: []models.Item{
		target,
		{ID: "vocab:ephemeral", Kind: "vocab", Answer: "lasting a short time"},
		{ID: "vocab:dup", Kind: "vocab", Answer: "Present everywhere!"},
		{ID: "vocab:candid", Kind: "vocab", Answer: "truthful and straightforward"},
		{ID: "vocab:frugal", Kind: "vocab", Answer: "sparing with money"},
		{ID: "vocab:verbose", Kind: "vocab", Answer: "using too many words"},
		{ID: "idiom:x", Kind: "idiom", Answer: "not a vocab answer"},
	}}
	b := NewBuilder(source, 1)

	q, err := b.Build(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, MultipleChoice, q.Type)
	require.Len(t, q.Options, DefaultOptions)
	assert.Equal(t, "present everywhere", q.Options[q.CorrectIndex])
	assert.True(t, q.Check(q.CorrectIndex))
	assert.False(t, q.Check((q.CorrectIndex+1)%len(q.Options)))
	assert.NotContains(t, q.Options, "Present everywhere!")
	assert.NotContains(t, q.Options, "not a vocab answer")
}

func TestBuildFallsBackToTextInput(t *testing.T) {
	b := NewBuilder(fakeSource{items: []models.Item{target}}, 1)

	q, err := b.Build(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, TextInput, q.Type)
	assert.Empty(t, q.Options)
	assert.False(t, q.Check(0))
	assert.True(t, q.CheckText("  Present, everywhere. "))
	assert.False(t, q.CheckText("nowhere"))
}

func TestBuildSourceError(t *testing.T) {
	b := NewBuilder(fakeSource{err: errors.New("db down")}, 1)
	_, err := b.Build(context.Background(), target)
	assert.Error(t, err)
}

func TestGrade(t *testing.T) {
	g := DefaultGrader()

	tests := []struct {
		name    string
		correct bool
		elapsed time.Duration
		want    models.Quality
	}{
		{"wrong", false, 2 * time.Second, models.QualityFail},
		{"wrong and slow", false, time.Minute, models.QualityFail},
		{"fast", true, 2 * time.Second, models.QualityEasy},
		{"normal", true, 10 * time.Second, models.QualityGood},
		{"slow", true, 30 * time.Second, models.QualityHard},
		{"unknown time", true, 0, models.QualityGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Grade(tt.correct, tt.elapsed))
		})
	}
}

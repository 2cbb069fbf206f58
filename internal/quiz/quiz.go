package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/example/prepbot/pkg/models"
)

// QuestionType represents different types of questions
type QuestionType string

const (
	// MultipleChoice asks the user to pick the answer among options
	MultipleChoice QuestionType = "multiple_choice"
	// TextInput asks the user to type the answer
	TextInput QuestionType = "text_input"
)

// DefaultOptions is the number of choices shown, correct one included
const DefaultOptions = 4

// Question is one quiz question built from a catalog item
type Question struct {
	Item         models.Item
	Type         QuestionType
	Options      []string // multiple choice only
	CorrectIndex int
}

// Check reports whether the option at index is the right answer
func (q Question) Check(index int) bool {
	return q.Type == MultipleChoice && index == q.CorrectIndex
}

// CheckText reports whether a typed answer matches the item's answer,
// ignoring case, punctuation and surrounding spaces
func (q Question) CheckText(answer string) bool {
	want := normalize(q.Item.Answer)
	return want != "" && normalize(answer) == want
}

func normalize(s string) string {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(field)
	}
	return b.String()
}

// DistractorSource returns wrong-answer candidates of the same kind as an item
type DistractorSource interface {
	Distractors(ctx context.Context, kind, excludeID string, n int) ([]models.Item, error)
}

// Builder creates questions for catalog items
type Builder struct {
	source  DistractorSource
	options int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBuilder creates a question builder. The seed makes option order reproducible.
func NewBuilder(source DistractorSource, seed int64) *Builder {
	return &Builder{
		source:  source,
		options: DefaultOptions,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// Build creates a multiple choice question for the item. When the catalog has no
// usable distractors of the same kind the question falls back to text input.
func (b *Builder) Build(ctx context.Context, item models.Item) (Question, error) {
	candidates, err := b.source.Distractors(ctx, item.Kind, item.ID, b.options*2)
	if err != nil {
		return Question{}, fmt.Errorf("failed to get distractors for %q: %w", item.ID, err)
	}

	seen := map[string]bool{normalize(item.Answer): true}
	options := make([]string, 0, b.options)
	for _, c := range candidates {
		key := normalize(c.Answer)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, c.Answer)
		if len(options) == b.options-1 {
			break
		}
	}

	if len(options) == 0 {
		return Question{Item: item, Type: TextInput, CorrectIndex: -1}, nil
	}

	options = append(options, item.Answer)
	correct := len(options) - 1

	b.mu.Lock()
	b.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
		switch correct {
		case i:
			correct = j
		case j:
			correct = i
		}
	})
	b.mu.Unlock()

	return Question{
		Item:         item,
		Type:         MultipleChoice,
		Options:      options,
		CorrectIndex: correct,
	}, nil
}

// Grader maps an answer to a recall quality
type Grader struct {
	// Correct answers faster than Fast are Easy
	Fast time.Duration
	// Correct answers slower than Slow are Hard
	Slow time.Duration
}

// DefaultGrader returns the grading thresholds used by the bot
func DefaultGrader() Grader {
	return Grader{Fast: 5 * time.Second, Slow: 20 * time.Second}
}

// Grade turns correctness and response time into a Quality.
// A zero elapsed time means the response time is unknown.
func (g Grader) Grade(correct bool, elapsed time.Duration) models.Quality {
	switch {
	case !correct:
		return models.QualityFail
	case elapsed <= 0:
		return models.QualityGood
	case elapsed < g.Fast:
		return models.QualityEasy
	case elapsed > g.Slow:
		return models.QualityHard
	default:
		return models.QualityGood
	}
}

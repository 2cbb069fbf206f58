package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/prepbot/pkg/models"
)

// Callback data for menu buttons
const (
	callbackReview   = "review"
	callbackProgress = "progress"
	callbackSettings = "settings"
	callbackHelp     = "help"
)

const (
	answerPrefix = "a"
	ratingPrefix = "r"
)

// Special answer options
const (
	optionDontKnow = -1
	optionReveal   = -2 // show the answer and ask for a self-rating
)

var errBadCallback = errors.New("malformed callback data")

// answerCallback identifies one option of one question of one session.
// Telegram limits callback data to 64 bytes.
type answerCallback struct {
	SessionID string
	Position  int
	Option    int // index into the options, or optionDontKnow / optionReveal
}

func (a answerCallback) String() string {
	return fmt.Sprintf("%s|%s|%d|%d", answerPrefix, a.SessionID, a.Position, a.Option)
}

func parseAnswerCallback(data string) (answerCallback, error) {
	parts := strings.Split(data, "|")
	if len(parts) != 4 || parts[0] != answerPrefix || parts[1] == "" {
		return answerCallback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	pos, err := strconv.Atoi(parts[2])
	if err != nil || pos < 0 {
		return answerCallback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	opt, err := strconv.Atoi(parts[3])
	if err != nil || opt < optionReveal {
		return answerCallback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	return answerCallback{SessionID: parts[1], Position: pos, Option: opt}, nil
}

// ratingCallback is the learner's own rating of a revealed answer
type ratingCallback struct {
	SessionID string
	Position  int
	Quality   models.Quality
}

func (r ratingCallback) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", ratingPrefix, r.SessionID, r.Position, r.Quality)
}

func parseRatingCallback(data string) (ratingCallback, error) {
	parts := strings.Split(data, "|")
	if len(parts) != 4 || parts[0] != ratingPrefix || parts[1] == "" {
		return ratingCallback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	pos, err := strconv.Atoi(parts[2])
	if err != nil || pos < 0 {
		return ratingCallback{}, fmt.Errorf("%w: %q", errBadCallback, data)
	}
	quality, err := models.ParseQuality(parts[3])
	if err != nil {
		return ratingCallback{}, fmt.Errorf("%w: %v", errBadCallback, err)
	}
	return ratingCallback{SessionID: parts[1], Position: pos, Quality: quality}, nil
}

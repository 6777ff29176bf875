/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

// Submission is a normalized answer. NoAnswer marks a player who never
// answered before the round ended; it is not the same as an empty answer and
// never matches anything.
type Submission struct {
	Text     string
	NoAnswer bool
}

func noAnswer() Submission {
	return Submission{NoAnswer: true}
}

func (s Submission) MarshalJSON() ([]byte, error) {
	if s.NoAnswer {
		return []byte("null"), nil
	}

	return json.Marshal(s.Text)
}

// Normalize trims and case-folds an answer. Both submissions and the
// canonical answers go through it before any comparison.
func Normalize(answer string) string {
	// Casers carry state and are not safe to share between goroutines.
	return cases.Fold().String(strings.TrimSpace(answer))
}

// gradeStandard scores one answer on its own. Ungraded questions accept any
// real answer.
func gradeStandard(q pack.Question, s Submission) bool {
	if s.NoAnswer {
		return false
	}

	if !q.Graded() {
		return true
	}

	return s.Text == Normalize(q.CorrectAnswer)
}

// gradePair scores two teammates together: both answers must match each
// other, and the correct answer when there is one.
func gradePair(q pack.Question, a, b Submission) bool {
	if a.NoAnswer || b.NoAnswer {
		return false
	}

	if a.Text != b.Text {
		return false
	}

	if !q.Graded() {
		return true
	}

	return a.Text == Normalize(q.CorrectAnswer)
}

// gradeUnique awards a point to every non-empty answer that no other player
// gave this round.
func gradeUnique(subs map[string]Submission) map[string]bool {
	counts := make(map[string]int, len(subs))
	for _, s := range subs {
		if s.NoAnswer || s.Text == "" {
			continue
		}
		counts[s.Text]++
	}

	out := make(map[string]bool, len(subs))
	for id, s := range subs {
		out[id] = !s.NoAnswer && s.Text != "" && counts[s.Text] == 1
	}

	return out
}

package round

import (
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/quizserver/models"
)

// Progress is what a Rules implementation needs to decide whether a round can close early.
type Progress struct {
	Eligible int
	Answered int
	Correct  int
	Buzzed   bool
	// BuzzerDone is true once the buzzed participant answered or left.
	BuzzerDone bool
}

// Rules is the variant specific part of a round.
type Rules interface {
	Buzzable() bool
	Match(q *models.Question, answer string) bool
	// Score returns the delta for one answer. solved is the number of correct answers received
	// before this one.
	Score(q *models.Question, correct bool, solved int, latency, limit time.Duration) int
	Complete(p Progress) bool
}

// RulesFor selects the strategy for a variant.
func RulesFor(v models.Variant) (Rules, error) {
	switch v {
	case models.VariantBuzzer:
		return buzzerRules{}, nil
	case models.VariantSpeed:
		return speedRules{}, nil
	case models.VariantPuzzleRace:
		return puzzleRaceRules{}, nil
	case models.VariantMathDuel:
		return mathDuelRules{}, nil
	case models.VariantMemoryMatch:
		return memoryMatchRules{}, nil
	}
	return nil, models.ErrUnknownGame
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func textMatch(q *models.Question, answer string) bool {
	return normalize(answer) != "" && normalize(answer) == normalize(q.CorrectAnswer)
}

func allAnswered(p Progress) bool {
	return p.Eligible > 0 && p.Answered >= p.Eligible
}

// 抢答：先抢到的人独占作答权
type buzzerRules struct{}

func (buzzerRules) Buzzable() bool { return true }

func (buzzerRules) Match(q *models.Question, answer string) bool { return textMatch(q, answer) }

func (buzzerRules) Score(q *models.Question, correct bool, _ int, _, _ time.Duration) int {
	if correct {
		return q.Points
	}
	return -q.Penalty
}

func (buzzerRules) Complete(p Progress) bool { return p.Buzzed && p.BuzzerDone }

// 速答：所有人各答一次，答得越快奖励越多
type speedRules struct{}

func (speedRules) Buzzable() bool { return false }

func (speedRules) Match(q *models.Question, answer string) bool { return textMatch(q, answer) }

func (speedRules) Score(q *models.Question, correct bool, _ int, latency, limit time.Duration) int {
	if !correct {
		return -q.Penalty
	}
	if limit <= 0 || latency >= limit {
		return q.Points
	}
	if latency < 0 {
		latency = 0
	}
	bonus := int(int64(q.Points/2) * int64(limit-latency) / int64(limit))
	return q.Points + bonus
}

func (speedRules) Complete(p Progress) bool { return allAnswered(p) }

type puzzleRaceRules struct{}

func (puzzleRaceRules) Buzzable() bool { return false }

func (puzzleRaceRules) Match(q *models.Question, answer string) bool { return textMatch(q, answer) }

func (puzzleRaceRules) Score(q *models.Question, correct bool, solved int, _, _ time.Duration) int {
	if !correct {
		return 0
	}
	points := q.Points
	for i := 0; i < solved && points > 1; i++ {
		points /= 2
	}
	if points < 1 {
		points = 1
	}
	return points
}

func (puzzleRaceRules) Complete(p Progress) bool { return allAnswered(p) }

type mathDuelRules struct{}

func (mathDuelRules) Buzzable() bool { return false }

func (mathDuelRules) Match(q *models.Question, answer string) bool {
	want, err1 := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer), 64)
	got, err2 := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err1 != nil || err2 != nil {
		return textMatch(q, answer)
	}
	diff := want - got
	return diff < 1e-9 && diff > -1e-9
}

func (mathDuelRules) Score(q *models.Question, correct bool, solved int, _, _ time.Duration) int {
	if correct && solved == 0 {
		return q.Points
	}
	return 0
}

func (mathDuelRules) Complete(p Progress) bool { return p.Correct > 0 || allAnswered(p) }

type memoryMatchRules struct{}

func (memoryMatchRules) Buzzable() bool { return false }

// Match compares the answer as a token sequence; commas and whitespace both separate tokens.
func (memoryMatchRules) Match(q *models.Question, answer string) bool {
	want := tokens(q.CorrectAnswer)
	got := tokens(answer)
	if len(want) == 0 || len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func (memoryMatchRules) Score(q *models.Question, correct bool, _ int, _, _ time.Duration) int {
	if correct {
		return q.Points
	}
	return 0
}

func (memoryMatchRules) Complete(p Progress) bool { return allAnswered(p) }

// round/engine.go
package round

import (
	"math/rand"
	"time"

	"github.com/samber/lo"

	"github.com/wfunc/quizserver/models"
)

const defaultTimeLimit = 30 * time.Second

type response struct {
	answer  string
	at      time.Time
	correct bool
}

type current struct {
	index      int
	question   models.Question
	view       models.QuestionView
	startedAt  time.Time
	deadlineAt time.Time
	limit      time.Duration

	order     []string // eligible participants at round start
	eligible  map[string]bool
	forfeited map[string]bool

	buzzedBy  string
	responses map[string]*response
	received  []string // answer receipt order

	result *models.RoundResult
}

// Engine evaluates one round at a time for a room.
// 不是并发安全的，只能由房间协调协程调用
type Engine struct {
	rules        Rules
	defaultLimit time.Duration
	rnd          *rand.Rand
	round        *current
}

func NewEngine(variant models.Variant, defaultLimit time.Duration) (*Engine, error) {
	rules, err := RulesFor(variant)
	if err != nil {
		return nil, err
	}
	if defaultLimit <= 0 {
		defaultLimit = defaultTimeLimit
	}
	return &Engine{
		rules:        rules,
		defaultLimit: defaultLimit,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Seed makes option shuffling reproducible.
func (e *Engine) Seed(seed int64) {
	e.rnd = rand.New(rand.NewSource(seed))
}

func (e *Engine) Buzzable() bool {
	return e.rules.Buzzable()
}

// StartRound opens round index with q. Only the listed participants may play it.
func (e *Engine) StartRound(index int, q models.Question, eligible []string, now time.Time) models.RoundView {
	limit := q.TimeLimit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	options := append([]string(nil), q.Options...)
	if len(options) == 0 && len(q.WrongAnswers) > 0 {
		options = append([]string{q.CorrectAnswer}, q.WrongAnswers...)
		e.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	}

	order := lo.Uniq(eligible)
	e.round = &current{
		index:    index,
		question: q,
		view: models.QuestionView{
			ID:               q.ID,
			Text:             q.Text,
			Options:          options,
			Points:           q.Points,
			TimeLimitSeconds: int(limit / time.Second),
		},
		startedAt:  now,
		deadlineAt: now.Add(limit),
		limit:      limit,
		order:      order,
		eligible:   lo.SliceToMap(order, func(id string) (string, bool) { return id, true }),
		forfeited:  make(map[string]bool),
		responses:  make(map[string]*response),
	}
	return *e.View()
}

func (e *Engine) open() (*current, error) {
	if e.round == nil {
		return nil, models.ErrNoActiveRound
	}
	if e.round.result != nil {
		return nil, models.ErrRoundResolved
	}
	return e.round, nil
}

// SubmitBuzz claims the round for userID. The first accepted call wins; callers must
// invoke it in server receipt order.
func (e *Engine) SubmitBuzz(userID string, at time.Time) error {
	if !e.rules.Buzzable() {
		return models.ErrRoundNotBuzzable
	}
	r, err := e.open()
	if err != nil {
		return err
	}
	if !r.eligible[userID] {
		return models.ErrNotEligible
	}
	if r.buzzedBy != "" {
		return models.ErrAlreadyBuzzed
	}
	r.buzzedBy = userID
	return nil
}

func (e *Engine) SubmitAnswer(userID, answer string, at time.Time) error {
	r, err := e.open()
	if err != nil {
		return err
	}
	if !r.eligible[userID] {
		return models.ErrNotEligible
	}
	if e.rules.Buzzable() && r.buzzedBy != userID {
		return models.ErrNotAuthorizedToAnswer
	}
	if _, ok := r.responses[userID]; ok {
		return models.ErrAlreadyAnswered
	}
	r.responses[userID] = &response{
		answer:  answer,
		at:      at,
		correct: e.rules.Match(&r.question, answer),
	}
	r.received = append(r.received, userID)
	return nil
}

// Forfeit drops a departed participant from the round so it does not wait on them.
func (e *Engine) Forfeit(userID string) {
	r := e.round
	if r == nil || r.result != nil || !r.eligible[userID] {
		return
	}
	delete(r.eligible, userID)
	r.forfeited[userID] = true
}

func (e *Engine) progress() Progress {
	r := e.round
	p := Progress{Eligible: len(r.eligible), Buzzed: r.buzzedBy != ""}
	for id, resp := range r.responses {
		if !r.eligible[id] {
			continue
		}
		p.Answered++
		if resp.correct {
			p.Correct++
		}
	}
	if p.Buzzed {
		_, answered := r.responses[r.buzzedBy]
		p.BuzzerDone = answered || r.forfeited[r.buzzedBy]
	}
	return p
}

// Complete reports whether the open round can be resolved without waiting for the deadline.
func (e *Engine) Complete() bool {
	if e.round == nil || e.round.result != nil {
		return false
	}
	return e.rules.Complete(e.progress())
}

// Resolve scores the round. It is idempotent: later calls return the cached result and false.
func (e *Engine) Resolve(reason models.ResolveReason, now time.Time) (models.RoundResult, bool) {
	r := e.round
	if r == nil {
		return models.RoundResult{}, false
	}
	if r.result != nil {
		return copyResult(r.result), false
	}

	deltas := make(map[string]int, len(r.order))
	solved := 0
	for _, id := range r.received {
		resp := r.responses[id]
		deltas[id] = e.rules.Score(&r.question, resp.correct, solved, resp.at.Sub(r.startedAt), r.limit)
		if resp.correct {
			solved++
		}
	}

	result := &models.RoundResult{
		Index:         r.index,
		CorrectAnswer: r.question.CorrectAnswer,
		BuzzedBy:      r.buzzedBy,
		Reason:        reason,
		ScoreDeltas:   make(map[string]int, len(r.order)),
		ResolvedAt:    now,
	}
	for _, id := range r.order {
		resp, answered := r.responses[id]
		if r.forfeited[id] && !answered {
			continue
		}
		outcome := models.ParticipantOutcome{UserID: id, Outcome: models.OutcomeNoAnswer}
		if answered {
			outcome.Answer = resp.answer
			outcome.LatencyMs = resp.at.Sub(r.startedAt).Milliseconds()
			outcome.Outcome = models.OutcomeWrong
			if resp.correct {
				outcome.Outcome = models.OutcomeCorrect
			}
			outcome.Delta = deltas[id]
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.ScoreDeltas[id] = outcome.Delta
	}
	r.result = result
	return copyResult(result), true
}

func copyResult(r *models.RoundResult) models.RoundResult {
	out := *r
	out.Outcomes = append([]models.ParticipantOutcome(nil), r.Outcomes...)
	out.ScoreDeltas = make(map[string]int, len(r.ScoreDeltas))
	for k, v := range r.ScoreDeltas {
		out.ScoreDeltas[k] = v
	}
	return out
}

// View is the redacted public state of the current round, nil before the first round.
func (e *Engine) View() *models.RoundView {
	r := e.round
	if r == nil {
		return nil
	}
	view := r.view
	view.Options = append([]string(nil), r.view.Options...)
	return &models.RoundView{
		Index:      r.index,
		Question:   view,
		StartedAt:  r.startedAt,
		DeadlineAt: r.deadlineAt,
		BuzzedBy:   r.buzzedBy,
		Answered:   append([]string{}, r.received...),
		Resolved:   r.result != nil,
	}
}

// Result returns the resolved result of the current round, if any.
func (e *Engine) Result() *models.RoundResult {
	if e.round == nil || e.round.result == nil {
		return nil
	}
	res := copyResult(e.round.result)
	return &res
}

// Active is true while a round is open.
func (e *Engine) Active() bool {
	return e.round != nil && e.round.result == nil
}

func (e *Engine) Index() int {
	if e.round == nil {
		return -1
	}
	return e.round.index
}

func (e *Engine) Deadline() time.Time {
	if e.round == nil {
		return time.Time{}
	}
	return e.round.deadlineAt
}

package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/quizserver/models"
)

// MemoryContent 内存题库，开发和测试使用
type MemoryContent struct {
	mutex     sync.RWMutex
	games     map[string]models.GameConfig
	questions map[string][]models.Question
}

func NewMemoryContent() *MemoryContent {
	return &MemoryContent{
		games:     make(map[string]models.GameConfig),
		questions: make(map[string][]models.Question),
	}
}

// AddGame registers a game. TotalQuestions defaults to the number of questions given.
func (m *MemoryContent) AddGame(cfg models.GameConfig, questions []models.Question) {
	if cfg.TotalQuestions == 0 {
		cfg.TotalQuestions = len(questions)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.games[cfg.GameID] = cfg
	m.questions[cfg.GameID] = append([]models.Question(nil), questions...)
}

func (m *MemoryContent) GetGameConfig(_ context.Context, gameID string) (models.GameConfig, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cfg, ok := m.games[gameID]
	if !ok {
		return models.GameConfig{}, models.ErrGameNotFound
	}
	return cfg, nil
}

func (m *MemoryContent) GetQuestion(_ context.Context, gameID string, index int) (models.Question, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	list, ok := m.questions[gameID]
	if !ok {
		return models.Question{}, models.ErrGameNotFound
	}
	if index < 0 || index >= len(list) {
		return models.Question{}, models.ErrQuestionNotFound
	}
	q := list[index]
	q.Options = append([]string(nil), q.Options...)
	q.WrongAnswers = append([]string(nil), q.WrongAnswers...)
	return q, nil
}

// Games lists every configured game.
func (m *MemoryContent) Games() []models.GameConfig {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	list := make([]models.GameConfig, 0, len(m.games))
	for _, g := range m.games {
		list = append(list, g)
	}
	return list
}

// Questions returns a copy of the question list of a game.
func (m *MemoryContent) Questions(gameID string) []models.Question {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]models.Question(nil), m.questions[gameID]...)
}

// NewSeededContent 内置一套题库，每种玩法一局
func NewSeededContent() *MemoryContent {
	m := NewMemoryContent()

	m.AddGame(models.GameConfig{
		GameID: "general-buzzer", Title: "General Knowledge Buzzer", Variant: models.VariantBuzzer,
		MinPlayers: 2, MaxPlayers: 8, QuestionTime: 20 * time.Second,
	}, []models.Question{
		{ID: "gk-1", Text: "What is the capital of France?", CorrectAnswer: "Paris", WrongAnswers: []string{"London", "Berlin", "Madrid"}, Points: 10},
		{ID: "gk-2", Text: "Which planet is known as the Red Planet?", CorrectAnswer: "Mars", WrongAnswers: []string{"Venus", "Jupiter", "Saturn"}, Points: 10},
		{ID: "gk-3", Text: "Who painted the Mona Lisa?", CorrectAnswer: "Da Vinci", WrongAnswers: []string{"Van Gogh", "Picasso", "Monet"}, Points: 10},
		{ID: "gk-4", Text: "What is the largest ocean on Earth?", CorrectAnswer: "Pacific", WrongAnswers: []string{"Atlantic", "Indian", "Arctic"}, Points: 10},
		{ID: "gk-5", Text: "What is the chemical symbol for gold?", CorrectAnswer: "Au", WrongAnswers: []string{"Go", "Gd", "Ag"}, Points: 10, Penalty: 5},
	})

	m.AddGame(models.GameConfig{
		GameID: "speed-trivia", Title: "Speed Trivia", Variant: models.VariantSpeed,
		MinPlayers: 2, MaxPlayers: 10, QuestionTime: 15 * time.Second,
	}, []models.Question{
		{ID: "st-1", Text: "Which programming language was created by Google?", CorrectAnswer: "Go", WrongAnswers: []string{"Java", "Python", "C++"}, Points: 100},
		{ID: "st-2", Text: "In which year did World War II end?", CorrectAnswer: "1945", WrongAnswers: []string{"1944", "1946", "1947"}, Points: 100},
		{ID: "st-3", Text: "What is the fastest land animal?", CorrectAnswer: "Cheetah", WrongAnswers: []string{"Lion", "Leopard", "Tiger"}, Points: 100},
		{ID: "st-4", Text: "Which country has the most natural lakes?", CorrectAnswer: "Canada", WrongAnswers: []string{"Russia", "USA", "Finland"}, Points: 100},
	})

	m.AddGame(models.GameConfig{
		GameID: "word-puzzle", Title: "Word Puzzle Race", Variant: models.VariantPuzzleRace,
		MinPlayers: 2, MaxPlayers: 6, QuestionTime: 45 * time.Second,
	}, []models.Question{
		{ID: "wp-1", Text: "Unscramble: TOGLANG", CorrectAnswer: "golang", Points: 40},
		{ID: "wp-2", Text: "Unscramble: REVRES", CorrectAnswer: "server", Points: 40},
		{ID: "wp-3", Text: "Unscramble: KETCOS", CorrectAnswer: "socket", Points: 40},
	})

	m.AddGame(models.GameConfig{
		GameID: "math-duel", Title: "Math Duel", Variant: models.VariantMathDuel,
		MinPlayers: 2, MaxPlayers: 2, QuestionTime: 10 * time.Second,
	}, []models.Question{
		{ID: "md-1", Text: "12 x 12", CorrectAnswer: "144", Points: 10},
		{ID: "md-2", Text: "81 / 9", CorrectAnswer: "9", Points: 10},
		{ID: "md-3", Text: "17 + 26", CorrectAnswer: "43", Points: 10},
		{ID: "md-4", Text: "1.5 x 4", CorrectAnswer: "6", Points: 10},
		{ID: "md-5", Text: "2 ^ 10", CorrectAnswer: "1024", Points: 10},
	})

	m.AddGame(models.GameConfig{
		GameID: "memory-match", Title: "Memory Match", Variant: models.VariantMemoryMatch,
		MinPlayers: 2, MaxPlayers: 6, QuestionTime: 20 * time.Second,
	}, []models.Question{
		{ID: "mm-1", Text: "Repeat the sequence: red, blue, green", CorrectAnswer: "red, blue, green", Points: 15},
		{ID: "mm-2", Text: "Repeat the sequence: 7 3 9 1", CorrectAnswer: "7 3 9 1", Points: 15},
		{ID: "mm-3", Text: "Repeat the sequence: cat, owl, fox, bee, elk", CorrectAnswer: "cat, owl, fox, bee, elk", Points: 25},
	})

	return m
}

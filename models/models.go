// models/models.go
package models

import (
	"time"
)

// RoomStatus 房间生命周期状态，只允许向前推进（Starting 可以回退到 Waiting）
type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusStarting   RoomStatus = "starting"
	StatusInProgress RoomStatus = "in_progress"
	StatusFinished   RoomStatus = "finished"
)

// Variant selects the round rules a room plays with.
type Variant string

const (
	VariantBuzzer      Variant = "buzzer"
	VariantSpeed       Variant = "speed"
	VariantPuzzleRace  Variant = "puzzle_race"
	VariantMathDuel    Variant = "math_duel"
	VariantMemoryMatch Variant = "memory_match"
)

func (v Variant) Valid() bool {
	switch v {
	case VariantBuzzer, VariantSpeed, VariantPuzzleRace, VariantMathDuel, VariantMemoryMatch:
		return true
	}
	return false
}

// ModeMultiplayer is the mode recorded with every final score written by a room.
const ModeMultiplayer = "multiplayer"

// Identity is an already-authenticated caller.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// GameConfig 题库中一局游戏的配置
type GameConfig struct {
	GameID         string        `json:"game_id"`
	Title          string        `json:"title"`
	Variant        Variant       `json:"variant"`
	MinPlayers     int           `json:"min_players"`
	MaxPlayers     int           `json:"max_players"`
	TotalQuestions int           `json:"total_questions"`
	QuestionTime   time.Duration `json:"question_time"`
}

// RoomOptions are the caller supplied settings for a new room.
type RoomOptions struct {
	MaxPlayers int `json:"max_players" validate:"omitempty,min=1,max=64"`
	MinPlayers int `json:"min_players" validate:"omitempty,min=1,max=64"`
}

// Question 题目内容，CorrectAnswer 在结算前绝不下发
type Question struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	Options       []string      `json:"options"`
	CorrectAnswer string        `json:"correct_answer"`
	WrongAnswers  []string      `json:"wrong_answers"`
	Points        int           `json:"points"`
	Penalty       int           `json:"penalty"`
	TimeLimit     time.Duration `json:"time_limit"`
}

// QuestionView is the redacted question sent to players.
type QuestionView struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	Points           int      `json:"points"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// Participant 玩家在房间中的成员记录
type Participant struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	IsReady     bool      `json:"is_ready"`
	IsConnected bool      `json:"is_connected"`
	IsHost      bool      `json:"is_host"`
	Score       int       `json:"score"`
	JoinOrder   int64     `json:"join_order"`
	JoinedAt    time.Time `json:"joined_at"`
}

// RoundView 当前回合的公开视图
type RoundView struct {
	Index      int          `json:"index"`
	Question   QuestionView `json:"question"`
	StartedAt  time.Time    `json:"started_at"`
	DeadlineAt time.Time    `json:"deadline_at"`
	BuzzedBy   string       `json:"buzzed_by,omitempty"`
	Answered   []string     `json:"answered"`
	Resolved   bool         `json:"resolved"`
}

// ResolveReason records what closed a round.
type ResolveReason string

const (
	ReasonAllAnswered ResolveReason = "all_answered"
	ReasonHostAdvance ResolveReason = "host_advance"
	ReasonDeadline    ResolveReason = "deadline"
)

const (
	OutcomeCorrect  = "correct"
	OutcomeWrong    = "wrong"
	OutcomeNoAnswer = "no_answer"
)

// ParticipantOutcome 单个玩家在一个回合中的结果
type ParticipantOutcome struct {
	UserID    string `json:"user_id"`
	Outcome   string `json:"outcome"`
	Answer    string `json:"answer,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Delta     int    `json:"delta"`
}

// RoundResult 回合结算结果，结算后不可变
type RoundResult struct {
	Index         int                  `json:"index"`
	CorrectAnswer string               `json:"correct_answer"`
	BuzzedBy      string               `json:"buzzed_by,omitempty"`
	Reason        ResolveReason        `json:"reason"`
	Outcomes      []ParticipantOutcome `json:"outcomes"`
	ScoreDeltas   map[string]int       `json:"score_deltas"`
	ResolvedAt    time.Time            `json:"resolved_at"`
}

// Ranking is one line of the final standings.
type Ranking struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// RoomSummary 大厅列表中展示的房间信息
type RoomSummary struct {
	Code       string     `json:"code"`
	GameID     string     `json:"game_id"`
	HostUserID string     `json:"host_user_id"`
	Variant    Variant    `json:"variant"`
	Status     RoomStatus `json:"status"`
	Players    int        `json:"players"`
	MinPlayers int        `json:"min_players"`
	MaxPlayers int        `json:"max_players"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RoomSnapshot is the full authoritative state of a room, used for reconnect reconciliation.
type RoomSnapshot struct {
	RoomSummary
	TotalQuestions int           `json:"total_questions"`
	RoundIndex     int           `json:"round_index"`
	Countdown      int           `json:"countdown,omitempty"`
	Participants   []Participant `json:"participants"`
	Round          *RoundView    `json:"round,omitempty"`
	LastResult     *RoundResult  `json:"last_result,omitempty"`
	Rankings       []Ranking     `json:"rankings,omitempty"`
}

// ScoreRecord 一局结束后写入持久层的个人成绩
type ScoreRecord struct {
	UserID     string                 `json:"user_id"`
	Username   string                 `json:"username"`
	GameID     string                 `json:"game_id"`
	RoomCode   string                 `json:"room_code"`
	Score      int                    `json:"score"`
	Rank       int                    `json:"rank"`
	Mode       string                 `json:"mode"`
	Metadata   map[string]interface{} `json:"metadata"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// GameRecord 游戏记录模型
type GameRecord struct {
	RoomCode   string    `json:"room_code"`
	GameID     string    `json:"game_id"`
	Variant    Variant   `json:"variant"`
	HostUserID string    `json:"host_user_id"`
	Rounds     int       `json:"rounds"`
	Rankings   []Ranking `json:"rankings"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	UserID      string  `json:"user_id"`
	TotalGames  int     `json:"total_games"`
	Wins        int     `json:"wins"`
	BestScore   int     `json:"best_score"`
	TotalScore  int     `json:"total_score"`
	AverageRank float64 `json:"average_rank"`
}

// LeaderboardEntry is one row of a per-game leaderboard.
type LeaderboardEntry struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Score      int       `json:"score"`
	RoomCode   string    `json:"room_code"`
	RecordedAt time.Time `json:"recorded_at"`
}

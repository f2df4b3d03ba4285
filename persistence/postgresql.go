// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/quizserver/models"
)

// PostgresContent 基于 PostgreSQL 的题库
type PostgresContent struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgresContent, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return NewPostgresContent(connStr)
}

func NewPostgresContent(connStr string) (*PostgresContent, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresContent{db: db, timeout: 5 * time.Second}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS games (
            game_id VARCHAR(64) PRIMARY KEY,
            title VARCHAR(255) NOT NULL,
            variant VARCHAR(32) NOT NULL,
            min_players INTEGER NOT NULL DEFAULT 2,
            max_players INTEGER NOT NULL DEFAULT 8,
            total_questions INTEGER NOT NULL,
            question_time_ms BIGINT NOT NULL DEFAULT 30000,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS questions (
            game_id VARCHAR(64) NOT NULL REFERENCES games(game_id) ON DELETE CASCADE,
            idx INTEGER NOT NULL,
            question_id VARCHAR(64) NOT NULL,
            text TEXT NOT NULL,
            options TEXT[] NOT NULL DEFAULT '{}',
            correct_answer TEXT NOT NULL,
            wrong_answers TEXT[] NOT NULL DEFAULT '{}',
            points INTEGER NOT NULL DEFAULT 10,
            penalty INTEGER NOT NULL DEFAULT 0,
            time_limit_ms BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (game_id, idx)
        )
    `)
	return err
}

func (p *PostgresContent) GetGameConfig(ctx context.Context, gameID string) (models.GameConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		cfg     models.GameConfig
		variant string
		timeMs  int64
	)
	query := `SELECT game_id, title, variant, min_players, max_players, total_questions, question_time_ms
        FROM games WHERE game_id = $1`
	err := p.db.QueryRowContext(ctx, query, gameID).Scan(
		&cfg.GameID, &cfg.Title, &variant, &cfg.MinPlayers, &cfg.MaxPlayers, &cfg.TotalQuestions, &timeMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GameConfig{}, models.ErrGameNotFound
		}
		return models.GameConfig{}, err
	}
	cfg.Variant = models.Variant(variant)
	cfg.QuestionTime = time.Duration(timeMs) * time.Millisecond
	return cfg, nil
}

func (p *PostgresContent) GetQuestion(ctx context.Context, gameID string, index int) (models.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		q      models.Question
		limit  int64
		option []string
		wrong  []string
	)
	query := `SELECT question_id, text, options, correct_answer, wrong_answers, points, penalty, time_limit_ms
        FROM questions WHERE game_id = $1 AND idx = $2`
	err := p.db.QueryRowContext(ctx, query, gameID, index).Scan(
		&q.ID, &q.Text, pq.Array(&option), &q.CorrectAnswer, pq.Array(&wrong), &q.Points, &q.Penalty, &limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Question{}, models.ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	q.Options = option
	q.WrongAnswers = wrong
	q.TimeLimit = time.Duration(limit) * time.Millisecond
	return q, nil
}

// SaveGame 写入或覆盖一局游戏及其题目
func (p *PostgresContent) SaveGame(ctx context.Context, cfg models.GameConfig, questions []models.Question) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if cfg.TotalQuestions == 0 {
		cfg.TotalQuestions = len(questions)
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO games (game_id, title, variant, min_players, max_players, total_questions, question_time_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (game_id)
        DO UPDATE SET title = $2, variant = $3, min_players = $4, max_players = $5,
            total_questions = $6, question_time_ms = $7
    `, cfg.GameID, cfg.Title, string(cfg.Variant), cfg.MinPlayers, cfg.MaxPlayers, cfg.TotalQuestions,
		cfg.QuestionTime.Milliseconds())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE game_id = $1`, cfg.GameID); err != nil {
		return err
	}
	for i, q := range questions {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO questions (game_id, idx, question_id, text, options, correct_answer, wrong_answers,
                points, penalty, time_limit_ms)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `, cfg.GameID, i, q.ID, q.Text, pq.Array(q.Options), q.CorrectAnswer, pq.Array(q.WrongAnswers),
			q.Points, q.Penalty, q.TimeLimit.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// SeedFrom copies every game of a memory catalogue into the database.
func (p *PostgresContent) SeedFrom(ctx context.Context, src *MemoryContent) error {
	for _, g := range src.Games() {
		if err := p.SaveGame(ctx, g, src.Questions(g.GameID)); err != nil {
			return fmt.Errorf("seed %s: %w", g.GameID, err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (p *PostgresContent) Close() error {
	return p.db.Close()
}

// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wfunc/quizserver/models"
)

// ContentStore 题库接口
//
//go:generate mockgen -destination=../mocks/mock_content_store.go -package=mocks github.com/wfunc/quizserver/persistence ContentStore
type ContentStore interface {
	GetGameConfig(ctx context.Context, gameID string) (models.GameConfig, error)
	GetQuestion(ctx context.Context, gameID string, index int) (models.Question, error)
}

// ScoreRecorder 成绩写入接口，一局结束时调用
//
//go:generate mockgen -destination=../mocks/mock_score_recorder.go -package=mocks github.com/wfunc/quizserver/persistence ScoreRecorder
type ScoreRecorder interface {
	RecordFinalScore(ctx context.Context, record models.ScoreRecord) error
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
}

// Database 数据库接口
type Database interface {
	ScoreRecorder
	Transaction(fn func(tx *gorm.DB) error) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

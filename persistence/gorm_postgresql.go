// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/quizserver/models"
)

// GormStore 使用GORM保存成绩和对局记录
type GormStore struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	store, err := NewGormStore(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return store, nil
}

// NewGormStore opens any gorm dialector and migrates the score tables.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormScoreRecord{}, &models.GormGameRecord{}); err != nil {
		return nil, fmt.Errorf("migrate score tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

// RecordFinalScore 写入一名玩家的最终成绩
func (s *GormStore) RecordFinalScore(ctx context.Context, record models.ScoreRecord) error {
	if record.Mode == "" {
		record.Mode = models.ModeMultiplayer
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	row := models.GormScoreRecord{
		UserID:     record.UserID,
		Username:   record.Username,
		GameID:     record.GameID,
		RoomCode:   record.RoomCode,
		Score:      record.Score,
		Rank:       record.Rank,
		Mode:       record.Mode,
		Metadata:   record.Metadata,
		RecordedAt: record.RecordedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// SaveGameRecord 保存游戏记录
func (s *GormStore) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	row := models.GormGameRecord{
		RoomCode:   record.RoomCode,
		GameID:     record.GameID,
		Variant:    string(record.Variant),
		HostUserID: record.HostUserID,
		Rounds:     record.Rounds,
		Rankings:   record.Rankings,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// 添加事务支持
func (s *GormStore) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormScoreRecord 个人成绩记录
type GormScoreRecord struct {
	gorm.Model
	UserID     string                 `gorm:"index;not null"`
	Username   string                 `gorm:"not null"`
	GameID     string                 `gorm:"index;not null"`
	RoomCode   string                 `gorm:"index;not null"`
	Score      int                    `gorm:"not null"`
	Rank       int                    `gorm:"not null"`
	Mode       string                 `gorm:"not null;default:'multiplayer'"`
	Metadata   map[string]interface{} `gorm:"serializer:json"`
	RecordedAt time.Time              `gorm:"index"`
}

func (GormScoreRecord) TableName() string { return "score_records" }

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomCode   string    `gorm:"index;not null"`
	GameID     string    `gorm:"index;not null"`
	Variant    string    `gorm:"not null"`
	HostUserID string    `gorm:"not null"`
	Rounds     int       `gorm:"default:0"`
	Rankings   []Ranking `gorm:"serializer:json"`
	StartedAt  time.Time
	FinishedAt time.Time
}

func (GormGameRecord) TableName() string { return "game_records" }

// ToScoreRecord converts the row back to the domain shape.
func (r GormScoreRecord) ToScoreRecord() ScoreRecord {
	return ScoreRecord{
		UserID:     r.UserID,
		Username:   r.Username,
		GameID:     r.GameID,
		RoomCode:   r.RoomCode,
		Score:      r.Score,
		Rank:       r.Rank,
		Mode:       r.Mode,
		Metadata:   r.Metadata,
		RecordedAt: r.RecordedAt,
	}
}

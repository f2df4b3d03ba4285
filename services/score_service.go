// services/score_service.go
package services

import (
	"gorm.io/gorm"

	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/persistence"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// ScoreService 排行榜和玩家战绩查询
type ScoreService struct {
	db persistence.Database
}

func NewScoreService(db persistence.Database) *ScoreService {
	return &ScoreService{db: db}
}

// Leaderboard 某个游戏的最高分榜
func (s *ScoreService) Leaderboard(gameID string, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	var rows []models.GormScoreRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Where("game_id = ? AND mode = ?", gameID, models.ModeMultiplayer).
			Order("score DESC").Order("recorded_at ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.LeaderboardEntry{
			UserID:     r.UserID,
			Username:   r.Username,
			Score:      r.Score,
			RoomCode:   r.RoomCode,
			RecordedAt: r.RecordedAt,
		})
	}
	return entries, nil
}

// PlayerStats 获取玩家统计，事务内一次读取保证数据一致
func (s *ScoreService) PlayerStats(userID string) (models.PlayerStats, error) {
	stats := models.PlayerStats{UserID: userID}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var agg struct {
			TotalGames int
			Wins       int
			BestScore  int
			TotalScore int
			RankSum    int
		}
		err := tx.Model(&models.GormScoreRecord{}).
			Select(`COUNT(*) AS total_games,
                COALESCE(SUM(CASE WHEN rank = 1 THEN 1 ELSE 0 END), 0) AS wins,
                COALESCE(MAX(score), 0) AS best_score,
                COALESCE(SUM(score), 0) AS total_score,
                COALESCE(SUM(rank), 0) AS rank_sum`).
			Where("user_id = ?", userID).
			Scan(&agg).Error
		if err != nil {
			return err
		}
		if agg.TotalGames == 0 {
			return persistence.ErrRecordNotFound
		}
		stats.TotalGames = agg.TotalGames
		stats.Wins = agg.Wins
		stats.BestScore = agg.BestScore
		stats.TotalScore = agg.TotalScore
		stats.AverageRank = float64(agg.RankSum) / float64(agg.TotalGames)
		return nil
	})
	return stats, err
}

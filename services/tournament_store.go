package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tournament-settlement/models"

	"gorm.io/gorm"
)

// TournamentStore is the narrow read/write surface settlement needs from the tournament
// service's tables. Every scan hits storage so latches are never read from a cache.
type TournamentStore interface {
	DueForFinalization(ctx context.Context, from, to time.Time) ([]models.Tournament, error)
	CountParticipants(ctx context.Context, tournamentID string) (int64, error)
	SaveFinalPrizePool(ctx context.Context, tournamentID string, pool int64) (bool, error)

	DueForSettlement(ctx context.Context, now time.Time) ([]models.Tournament, error)
	GetTournament(ctx context.Context, tournamentID string) (*models.Tournament, error)
	ListParticipants(ctx context.Context, tournamentID string) ([]ParticipantIdentity, error)
	MarkProcessed(ctx context.Context, tournamentID string, status models.TournamentStatus) (bool, error)
}

// ParticipantIdentity pairs an enrolled player with their external identity, which may be
// missing when the player never linked an account.
type ParticipantIdentity struct {
	PlayerID string
	Identity *models.PlayerIdentity
}

type GormTournamentStore struct {
	DB *gorm.DB
}

func NewGormTournamentStore(db *gorm.DB) *GormTournamentStore {
	return &GormTournamentStore{DB: db}
}

func (s *GormTournamentStore) DueForFinalization(ctx context.Context, from, to time.Time) ([]models.Tournament, error) {
	var tournaments []models.Tournament
	err := s.DB.WithContext(ctx).
		Where("match_start_time >= ? AND match_start_time <= ? AND final_pool_calculated = ?", from, to, false).
		Order("match_start_time ASC").
		Find(&tournaments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments for finalization: %w", err)
	}
	return tournaments, nil
}

func (s *GormTournamentStore) CountParticipants(ctx context.Context, tournamentID string) (int64, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("tournament_id = ?", tournamentID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// SaveFinalPrizePool only writes while the latch is still open; false means another
// worker latched it first.
func (s *GormTournamentStore) SaveFinalPrizePool(ctx context.Context, tournamentID string, pool int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND final_pool_calculated = ?", tournamentID, false).
		Updates(map[string]interface{}{
			"prize_pool":            pool,
			"final_pool_calculated": true,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update prize pool: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormTournamentStore) DueForSettlement(ctx context.Context, now time.Time) ([]models.Tournament, error) {
	var tournaments []models.Tournament
	err := s.DB.WithContext(ctx).
		Where("match_result_time < ? AND processed = ?", now, false).
		Order("match_result_time ASC").
		Find(&tournaments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tournaments: %w", err)
	}
	return tournaments, nil
}

func (s *GormTournamentStore) GetTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to fetch tournament: %w", err)
	}
	return &t, nil
}

func (s *GormTournamentStore) ListParticipants(ctx context.Context, tournamentID string) ([]ParticipantIdentity, error) {
	db := s.DB.WithContext(ctx)

	var participants []models.Participant
	if err := db.Where("tournament_id = ?", tournamentID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	if len(participants) == 0 {
		return nil, nil
	}

	playerIDs := make([]string, len(participants))
	for i, p := range participants {
		playerIDs[i] = p.PlayerID
	}

	var identities []models.PlayerIdentity
	if err := db.Where("user_id IN ?", playerIDs).Find(&identities).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch player identities: %w", err)
	}
	byUser := make(map[string]*models.PlayerIdentity, len(identities))
	for i := range identities {
		byUser[identities[i].UserID] = &identities[i]
	}

	out := make([]ParticipantIdentity, len(participants))
	for i, p := range participants {
		out[i] = ParticipantIdentity{PlayerID: p.PlayerID, Identity: byUser[p.PlayerID]}
	}
	return out, nil
}

// MarkProcessed closes the processed latch; false means it was already closed.
func (s *GormTournamentStore) MarkProcessed(ctx context.Context, tournamentID string, status models.TournamentStatus) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND processed = ?", tournamentID, false).
		Updates(map[string]interface{}{
			"processed": true,
			"status":    status,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark tournament processed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MatchResultDelay is how long after match start the result becomes due.
const MatchResultDelay = 15 * time.Minute

type TournamentStatus string

const (
	TournamentStatusUpcoming TournamentStatus = "upcoming"
	TournamentStatusValid    TournamentStatus = "valid"
	TournamentStatusInvalid  TournamentStatus = "invalid"
)

// Tournament is owned by the CRUD service. Settlement only writes PrizePool,
// FinalPoolCalculated, Status and Processed.
type Tournament struct {
	ID               string          `json:"id" gorm:"primaryKey;type:uuid"`
	Name             string          `json:"name" gorm:"not null"`
	HostID           string          `json:"host_id" gorm:"index"`
	Capacity         int             `json:"capacity" gorm:"not null;default:0"`
	JoiningFee       int64           `json:"joining_fee" gorm:"not null;default:0"`
	HostPercentage   decimal.Decimal `json:"host_percentage" gorm:"type:numeric(6,4);not null;default:0"`
	HostContribution int64           `json:"host_contribution" gorm:"not null;default:0"`
	PrizeFirstPct    decimal.Decimal `json:"prize_first_pct" gorm:"type:numeric(6,4);not null;default:0"`
	PrizeSecondPct   decimal.Decimal `json:"prize_second_pct" gorm:"type:numeric(6,4);not null;default:0"`
	PrizeThirdPct    decimal.Decimal `json:"prize_third_pct" gorm:"type:numeric(6,4);not null;default:0"`

	MatchStartTime  time.Time `json:"match_start_time" gorm:"not null;index"`
	MatchResultTime time.Time `json:"match_result_time" gorm:"not null;index"`

	PrizePool           int64            `json:"prize_pool" gorm:"not null;default:0"`
	FinalPoolCalculated bool             `json:"final_pool_calculated" gorm:"not null;default:false;index"`
	Processed           bool             `json:"processed" gorm:"not null;default:false;index"`
	Status              TournamentStatus `json:"status" gorm:"type:varchar(16);not null;default:'upcoming'"`

	Platform string `json:"platform"`
	Region   string `json:"region"`
	MatchMap string `json:"match_map"`

	Timestamps
}

func (Tournament) TableName() string {
	return "tournaments"
}

// BeforeCreate derives the result time when the creator left it unset.
func (t *Tournament) BeforeCreate(tx *gorm.DB) error {
	if t.MatchResultTime.IsZero() && !t.MatchStartTime.IsZero() {
		t.MatchResultTime = t.MatchStartTime.Add(MatchResultDelay)
	}
	return nil
}

// PrizePct returns the payout fraction for a 1-based leaderboard position.
func (t *Tournament) PrizePct(position int) decimal.Decimal {
	switch position {
	case 1:
		return t.PrizeFirstPct
	case 2:
		return t.PrizeSecondPct
	case 3:
		return t.PrizeThirdPct
	}
	return decimal.Zero
}

// Participant is the tournament/player junction. Join and leave are handled upstream.
type Participant struct {
	TournamentID string    `json:"tournament_id" gorm:"primaryKey;type:uuid"`
	PlayerID     string    `json:"player_id" gorm:"primaryKey;type:uuid;index"`
	JoinedAt     time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

func (Participant) TableName() string {
	return "tournament_participants"
}

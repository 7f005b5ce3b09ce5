package models

import "fmt"

// PlayerIdentity is how a player is known inside the match verification service.
type PlayerIdentity struct {
	UserID   string `json:"user_id" gorm:"primaryKey;type:uuid"`
	Name     string `json:"name" gorm:"not null"`
	Tag      string `json:"tag" gorm:"not null"`
	Platform string `json:"platform" gorm:"not null"`
	Region   string `json:"region" gorm:"not null"`

	Timestamps
}

func (PlayerIdentity) TableName() string {
	return "player_identities"
}

// Matches reports whether the identity tuple equals the one reported by the verification service.
func (p PlayerIdentity) Matches(name, tag, platform, region string) bool {
	return p.Name == name && p.Tag == tag && p.Platform == platform && p.Region == region
}

// DisplayName renders "name#tag".
func (p PlayerIdentity) DisplayName() string {
	return fmt.Sprintf("%s#%s", p.Name, p.Tag)
}

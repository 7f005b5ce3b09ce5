package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tournament-settlement/models"
)

// expectedStartLayout is ISO-8601 without timezone or milliseconds.
const expectedStartLayout = "2006-01-02T15:04:05"

const (
	validatePath    = "/matches/validate-match-history"
	leaderboardPath = "/matches/leaderboard"
)

// MatchVerifier checks that a match happened with the expected roster and ranks it.
type MatchVerifier interface {
	Validate(ctx context.Context, q MatchQuery) (*ValidationResult, error)
	Leaderboard(ctx context.Context, q MatchQuery) (*LeaderboardResult, error)
}

type RosterPlayer struct {
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Region   string `json:"region"`
	Platform string `json:"platform"`
}

type MatchQuery struct {
	Players           []RosterPlayer
	ExpectedStartTime time.Time
	ExpectedMap       string
}

type matchRequest struct {
	Players           []RosterPlayer `json:"players"`
	ExpectedStartTime string         `json:"expected_start_time"`
	ExpectedMap       string         `json:"expected_map"`
}

func (q MatchQuery) body() matchRequest {
	players := q.Players
	if players == nil {
		players = []RosterPlayer{}
	}
	return matchRequest{
		Players:           players,
		ExpectedStartTime: q.ExpectedStartTime.UTC().Format(expectedStartLayout),
		ExpectedMap:       q.ExpectedMap,
	}
}

type ValidationResult struct {
	Passed              bool    `json:"validation_passed"`
	MatchID             string  `json:"match_id"`
	Message             string  `json:"message"`
	PercentageWithMatch float64 `json:"percentage_with_match"`
}

type PlayerInfo struct {
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Platform string `json:"platform"`
	Region   string `json:"region"`
}

type LeaderboardEntry struct {
	PlayerInfo         PlayerInfo `json:"player_info"`
	Kills              int        `json:"kills"`
	AverageCombatScore float64    `json:"average_combat_score"`
}

// LeaderboardResult keeps entries in the service's order; index 0 is first place.
type LeaderboardResult struct {
	MatchID         string             `json:"match_id"`
	Map             string             `json:"map"`
	TotalPlayers    int                `json:"total_players"`
	Entries         []LeaderboardEntry `json:"leaderboard"`
	NonParticipants json.RawMessage    `json:"non_participants,omitempty"`
}

type VerificationClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewVerificationClient(baseURL string, timeout time.Duration) *VerificationClient {
	return &VerificationClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *VerificationClient) Validate(ctx context.Context, q MatchQuery) (*ValidationResult, error) {
	var out ValidationResult
	if err := c.post(ctx, validatePath, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *VerificationClient) Leaderboard(ctx context.Context, q MatchQuery) (*LeaderboardResult, error) {
	var out LeaderboardResult
	if err := c.post(ctx, leaderboardPath, q, &out); err != nil {
		return nil, err
	}
	for i, e := range out.Entries {
		if e.PlayerInfo.Name == "" || e.PlayerInfo.Tag == "" {
			return nil, &VerificationUnavailableError{
				Endpoint: leaderboardPath,
				Err:      fmt.Errorf("leaderboard entry %d is missing player name or tag", i),
			}
		}
	}
	return &out, nil
}

func (c *VerificationClient) post(ctx context.Context, path string, q MatchQuery, out interface{}) error {
	endpoint, err := url.JoinPath(c.BaseURL, path)
	if err != nil {
		return fmt.Errorf("invalid verification service URL %q: %w", c.BaseURL, err)
	}

	payload, err := json.Marshal(q.body())
	if err != nil {
		return fmt.Errorf("failed to encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &VerificationUnavailableError{Endpoint: path, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &VerificationUnavailableError{Endpoint: path, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return &VerificationUnavailableError{Endpoint: path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// RosterFromParticipants keeps only participants with a linked identity.
func RosterFromParticipants(participants []ParticipantIdentity) []RosterPlayer {
	roster := make([]RosterPlayer, 0, len(participants))
	for _, p := range participants {
		if p.Identity == nil {
			continue
		}
		roster = append(roster, RosterPlayer{
			Name:     p.Identity.Name,
			Tag:      p.Identity.Tag,
			Region:   p.Identity.Region,
			Platform: p.Identity.Platform,
		})
	}
	return roster
}

// findIdentity maps a leaderboard entry back to the enrolled player.
func findIdentity(participants []ParticipantIdentity, info PlayerInfo) *models.PlayerIdentity {
	for _, p := range participants {
		if p.Identity != nil && p.Identity.Matches(info.Name, info.Tag, info.Platform, info.Region) {
			return p.Identity
		}
	}
	return nil
}

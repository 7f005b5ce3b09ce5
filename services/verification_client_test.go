package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tournament-settlement/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuery() MatchQuery {
	return MatchQuery{
		Players: []RosterPlayer{
			{Name: "ace", Tag: "EU1", Region: "eu", Platform: "pc"},
			{Name: "bolt", Tag: "EU2", Region: "eu", Platform: "pc"},
		},
		ExpectedStartTime: time.Date(2026, 3, 14, 18, 30, 0, 0, time.FixedZone("CET", 3600)),
		ExpectedMap:       "Ascent",
	}
}

func TestValidateSendsRosterAndParsesResult(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/matches/validate-match-history", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"validation_passed":true,"match_id":"m-1","message":"ok","percentage_with_match":100}`))
	}))
	defer srv.Close()

	client := NewVerificationClient(srv.URL+"/", time.Second)
	res, err := client.Validate(context.Background(), testQuery())

	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "m-1", res.MatchID)
	assert.Equal(t, 100.0, res.PercentageWithMatch)

	assert.Equal(t, "2026-03-14T17:30:00", got["expected_start_time"])
	assert.Equal(t, "Ascent", got["expected_map"])
	players, ok := got["players"].([]interface{})
	require.True(t, ok)
	require.Len(t, players, 2)
	assert.Equal(t, map[string]interface{}{"name": "ace", "tag": "EU1", "region": "eu", "platform": "pc"}, players[0])
}

func TestValidateEmptyRosterSendsEmptyArray(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"validation_passed":false}`))
	}))
	defer srv.Close()

	_, err := NewVerificationClient(srv.URL, time.Second).Validate(context.Background(), MatchQuery{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw["players"]))
}

func TestVerificationFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"validation_passed":`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(500 * time.Millisecond):
				case <-r.Context().Done():
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewVerificationClient(srv.URL, 100*time.Millisecond).Validate(context.Background(), testQuery())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrVerificationUnavailable))
		})
	}
}

func TestVerificationStatusKeptOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewVerificationClient(srv.URL, time.Second).Leaderboard(context.Background(), testQuery())

	var vErr *VerificationUnavailableError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, http.StatusServiceUnavailable, vErr.StatusCode)
	assert.Equal(t, leaderboardPath, vErr.Endpoint)
	assert.Contains(t, vErr.Body, "maintenance")
}

func TestLeaderboardKeepsServiceOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches/leaderboard", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"match_id": "m-9",
			"map": "Ascent",
			"total_players": 10,
			"leaderboard": [
				{"player_info": {"name": "bolt", "tag": "EU2", "platform": "pc", "region": "eu"}, "kills": 12, "average_combat_score": 210.5},
				{"player_info": {"name": "ace", "tag": "EU1", "platform": "pc", "region": "eu"}, "kills": 30, "average_combat_score": 320}
			],
			"non_participants": [{"name": "x"}]
		}`))
	}))
	defer srv.Close()

	res, err := NewVerificationClient(srv.URL, time.Second).Leaderboard(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, "m-9", res.MatchID)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "bolt", res.Entries[0].PlayerInfo.Name)
	assert.Equal(t, 12, res.Entries[0].Kills)
	assert.Equal(t, "ace", res.Entries[1].PlayerInfo.Name)
	assert.NotEmpty(t, res.NonParticipants)
}

func TestLeaderboardRejectsEntriesWithoutIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"leaderboard":[{"player_info":{"name":"ace"},"kills":3}]}`))
	}))
	defer srv.Close()

	_, err := NewVerificationClient(srv.URL, time.Second).Leaderboard(context.Background(), testQuery())
	assert.ErrorIs(t, err, ErrVerificationUnavailable)
}

func TestRosterSkipsUnlinkedParticipants(t *testing.T) {
	participants := []ParticipantIdentity{
		{PlayerID: "u1", Identity: &models.PlayerIdentity{UserID: "u1", Name: "ace", Tag: "EU1", Region: "eu", Platform: "pc"}},
		{PlayerID: "u2"},
	}

	roster := RosterFromParticipants(participants)

	require.Len(t, roster, 1)
	assert.Equal(t, RosterPlayer{Name: "ace", Tag: "EU1", Region: "eu", Platform: "pc"}, roster[0])
}

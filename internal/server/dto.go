package server

import (
	"encoding/json"
	"time"

	"forestlog/internal/domain"
	"forestlog/internal/engine"
	"forestlog/internal/game"
)

// Request payloads

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	IsPublic  *bool   `json:"is_public,omitempty"`
}

type CreateLogRequest struct {
	TaskText    string `json:"task_text"`
	EffortLevel string `json:"effort_level" example:"sapling"`
}

type CreateShareRequest struct {
	ShareType string `json:"share_type,omitempty" enum:"profile,weekly,monthly"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   string      `json:"expires_at" format:"date-time"`
	User        domain.User `json:"user"`
}

type LogResultResponse struct {
	Log             domain.Log `json:"log"`
	NewTotalPoints  int        `json:"new_total_points"`
	NewLevel        int        `json:"new_level"`
	NewStreak       int        `json:"new_streak"`
	LevelUp         bool       `json:"level_up"`
	MilestoneEarned *string    `json:"milestone_earned"`
}

type StreakResponse struct {
	StreakType   string          `json:"streak_type" enum:"daily,weekly,monthly,yearly"`
	CurrentCount int             `json:"current_count"`
	BestCount    int             `json:"best_count"`
	StartedAt    *string         `json:"started_at" format:"date"`
	LastUpdated  *string         `json:"last_updated" format:"date"`
	Metadata     game.StreakMeta `json:"metadata"`
}

type StreaksResponse struct {
	Daily   StreakResponse `json:"daily"`
	Weekly  StreakResponse `json:"weekly"`
	Monthly StreakResponse `json:"monthly"`
	Yearly  StreakResponse `json:"yearly"`
}

type PublicForestResponse struct {
	Username     string        `json:"username"`
	ShareType    string        `json:"share_type"`
	TotalPoints  int           `json:"total_points"`
	CurrentLevel int           `json:"current_level"`
	DailyStreak  int           `json:"daily_streak"`
	ViewCount    int           `json:"view_count"`
	Likes        int           `json:"likes"`
	RecentTrees  []engine.Tree `json:"recent_trees"`
}

type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func tokenResponse(s engine.Session) TokenResponse {
	return TokenResponse{
		AccessToken: s.Token,
		TokenType:   "bearer",
		ExpiresAt:   s.ExpiresAt.UTC().Format(time.RFC3339),
		User:        s.User,
	}
}

func logResultResponse(r engine.LogResult) LogResultResponse {
	resp := LogResultResponse{
		Log:            r.Log,
		NewTotalPoints: r.NewTotalPoints,
		NewLevel:       r.NewLevel,
		NewStreak:      r.NewStreak,
		LevelUp:        r.LevelUp,
	}
	if r.MilestoneEarned != nil {
		resp.MilestoneEarned = strPtr(r.MilestoneEarned.BadgeName)
	}
	return resp
}

func streakResponse(s game.Streak) StreakResponse {
	resp := StreakResponse{
		StreakType:   string(s.Type),
		CurrentCount: s.CurrentCount,
		BestCount:    s.BestCount,
		Metadata:     s.Meta,
	}
	if s.StartedAt != nil {
		resp.StartedAt = strPtr(game.FormatDate(*s.StartedAt))
	}
	if s.LastUpdated != nil {
		resp.LastUpdated = strPtr(game.FormatDate(*s.LastUpdated))
	}
	return resp
}

func streaksResponse(set game.StreakSet) StreaksResponse {
	return StreaksResponse{
		Daily:   streakResponse(set.Daily),
		Weekly:  streakResponse(set.Weekly),
		Monthly: streakResponse(set.Monthly),
		Yearly:  streakResponse(set.Yearly),
	}
}

func publicForestResponse(f engine.PublicForest) PublicForestResponse {
	return PublicForestResponse{
		Username:     f.Username,
		ShareType:    f.ShareType,
		TotalPoints:  f.TotalPoints,
		CurrentLevel: f.CurrentLevel,
		DailyStreak:  f.DailyStreak,
		ViewCount:    f.ViewCount,
		Likes:        f.Likes,
		RecentTrees:  nonNilSlice(f.RecentTrees),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

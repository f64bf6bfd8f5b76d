package domain

type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	AvatarURL    string  `json:"avatar_url,omitempty"`
	Bio          string  `json:"bio,omitempty"`
	TotalPoints  int     `json:"total_points"`
	CurrentLevel int     `json:"current_level"`
	IsPublic     bool    `json:"is_public"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	LastActiveAt string  `json:"last_active_at" format:"date-time"`
	LastLogDate  *string `json:"last_log_date,omitempty" format:"date"`
}

type Log struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	TaskText     string `json:"task_text"`
	EffortLevel  string `json:"effort_level" enum:"seed,sapling,oak"`
	PointsEarned int    `json:"points_earned"`
	TreeEmoji    string `json:"tree_emoji"`
	LoggedAt     string `json:"logged_at" format:"date-time"`
	Date         string `json:"date" format:"date"`
}

type Milestone struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	BadgeName   string `json:"badge_name"`
	BadgeType   string `json:"badge_type"`
	Description string `json:"description,omitempty"`
	EarnedAt    string `json:"earned_at" format:"date-time"`
}

type SharedForest struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	ShareToken string  `json:"share_token"`
	ShareType  string  `json:"share_type" enum:"profile,weekly,monthly"`
	IsActive   bool    `json:"is_active"`
	ViewCount  int     `json:"view_count"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	ExpiresAt  *string `json:"expires_at,omitempty" format:"date-time"`
}

type ForestLike struct {
	ID             string `json:"id"`
	SharedForestID string `json:"shared_forest_id"`
	LikerUserID    string `json:"liker_user_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// DayPoints is one bar of the weekly points graph.
type DayPoints struct {
	Date   string `json:"date" format:"date"`
	Day    string `json:"day"`
	Points int    `json:"points"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

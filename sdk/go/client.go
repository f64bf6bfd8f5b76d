package forestlogsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Forestlog HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api/v1",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	AvatarURL    string  `json:"avatar_url,omitempty"`
	Bio          string  `json:"bio,omitempty"`
	TotalPoints  int     `json:"total_points"`
	CurrentLevel int     `json:"current_level"`
	IsPublic     bool    `json:"is_public"`
	CreatedAt    string  `json:"created_at"`
	LastLogDate  *string `json:"last_log_date,omitempty"`
}

// Session is returned by Register and Login.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type Log struct {
	ID           string `json:"id"`
	TaskText     string `json:"task_text"`
	EffortLevel  string `json:"effort_level"`
	PointsEarned int    `json:"points_earned"`
	TreeEmoji    string `json:"tree_emoji"`
	LoggedAt     string `json:"logged_at"`
	Date         string `json:"date"`
}

// LogResult reports the effects of logging one task.
type LogResult struct {
	Log             Log     `json:"log"`
	NewTotalPoints  int     `json:"new_total_points"`
	NewLevel        int     `json:"new_level"`
	NewStreak       int     `json:"new_streak"`
	LevelUp         bool    `json:"level_up"`
	MilestoneEarned *string `json:"milestone_earned"`
}

type Streak struct {
	StreakType   string         `json:"streak_type"`
	CurrentCount int            `json:"current_count"`
	BestCount    int            `json:"best_count"`
	StartedAt    *string        `json:"started_at"`
	LastUpdated  *string        `json:"last_updated"`
	Metadata     map[string]any `json:"metadata"`
}

type Streaks struct {
	Daily   Streak `json:"daily"`
	Weekly  Streak `json:"weekly"`
	Monthly Streak `json:"monthly"`
	Yearly  Streak `json:"yearly"`
}

type Milestone struct {
	ID          string `json:"id"`
	BadgeName   string `json:"badge_name"`
	BadgeType   string `json:"badge_type"`
	Description string `json:"description,omitempty"`
	EarnedAt    string `json:"earned_at"`
}

type Share struct {
	ID         string `json:"id"`
	ShareToken string `json:"share_token"`
	ShareType  string `json:"share_type"`
	IsActive   bool   `json:"is_active"`
	ViewCount  int    `json:"view_count"`
	CreatedAt  string `json:"created_at"`
}

type Tree struct {
	Tree   string `json:"tree"`
	Date   string `json:"date"`
	Points int    `json:"points"`
}

// PublicForest is the anonymous view of a shared forest.
type PublicForest struct {
	Username     string `json:"username"`
	ShareType    string `json:"share_type"`
	TotalPoints  int    `json:"total_points"`
	CurrentLevel int    `json:"current_level"`
	DailyStreak  int    `json:"daily_streak"`
	ViewCount    int    `json:"view_count"`
	Likes        int    `json:"likes"`
	RecentTrees  []Tree `json:"recent_trees"`
}

// ProfileUpdate carries optional profile changes.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	IsPublic  *bool   `json:"is_public,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates an account and stores the returned bearer token on the client.
func (c *Client) Register(ctx context.Context, username, email, password string) (Session, error) {
	body := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "auth/register", body, &resp); err != nil {
		return Session{}, err
	}
	c.BearerToken = resp.AccessToken
	return resp, nil
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return Session{}, err
	}
	c.BearerToken = resp.AccessToken
	return resp, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "auth/me", nil, &resp)
	return resp, err
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPatch, "auth/me", update, &resp)
	return resp, err
}

// CreateLog logs a finished task.
func (c *Client) CreateLog(ctx context.Context, taskText, effortLevel string) (LogResult, error) {
	body := map[string]any{
		"task_text":    taskText,
		"effort_level": effortLevel,
	}
	var resp LogResult
	err := c.do(ctx, http.MethodPost, "logs", body, &resp)
	return resp, err
}

func (c *Client) Streaks(ctx context.Context) (Streaks, error) {
	var resp Streaks
	err := c.do(ctx, http.MethodGet, "streaks", nil, &resp)
	return resp, err
}

func (c *Client) Milestones(ctx context.Context) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, "streaks/milestones", nil, &resp)
	return resp, err
}

// CreateShare publishes the forest. shareType may be empty for a profile share.
func (c *Client) CreateShare(ctx context.Context, shareType string) (Share, error) {
	body := map[string]any{}
	if shareType != "" {
		body["share_type"] = shareType
	}
	var resp Share
	err := c.do(ctx, http.MethodPost, "share", body, &resp)
	return resp, err
}

// PublicForest fetches a shared forest. No credentials are needed.
func (c *Client) PublicForest(ctx context.Context, token string) (PublicForest, error) {
	var resp PublicForest
	err := c.do(ctx, http.MethodGet, "share/"+url.PathEscape(token), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

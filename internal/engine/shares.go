package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"forestlog/internal/domain"
	"forestlog/internal/events"
	"forestlog/internal/game"
	"forestlog/internal/repo"
)

const (
	ShareProfile = "profile"
	ShareWeekly  = "weekly"
	ShareMonthly = "monthly"

	shareTokenAttempts = 10
	recentTreesLimit   = 20
)

type ShareInput struct {
	ShareType string `validate:"omitempty,oneof=profile weekly monthly"`
}

// PublicForest is the read-only view behind a share link.
type PublicForest struct {
	Username     string
	ShareType    string
	TotalPoints  int
	CurrentLevel int
	DailyStreak  int
	ViewCount    int
	Likes        int
	RecentTrees  []Tree
}

type Tree struct {
	Tree   string `json:"tree"`
	Date   string `json:"date" format:"date"`
	Points int    `json:"points"`
}

// newShareToken returns 8 URL-safe characters.
func newShareToken() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateShare issues a share link. The profile must be public.
func (e Engine) CreateShare(ctx context.Context, userID string, in ShareInput) (domain.SharedForest, error) {
	if err := validateInput(in); err != nil {
		return domain.SharedForest{}, err
	}
	if in.ShareType == "" {
		in.ShareType = ShareProfile
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SharedForest{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return domain.SharedForest{}, err
	}
	if !u.IsPublic {
		return domain.SharedForest{}, fmt.Errorf("%w: profile must be public to share", ErrForbidden)
	}

	var token string
	for i := 0; ; i++ {
		if i == shareTokenAttempts {
			return domain.SharedForest{}, errors.New("could not allocate a unique share token")
		}
		if token, err = newShareToken(); err != nil {
			return domain.SharedForest{}, err
		}
		exists, err := e.Repo.ShareTokenExists(ctx, tx, token)
		if err != nil {
			return domain.SharedForest{}, err
		}
		if !exists {
			break
		}
	}

	s := domain.SharedForest{
		ID:         uuid.NewString(),
		UserID:     userID,
		ShareToken: token,
		ShareType:  in.ShareType,
		IsActive:   true,
		CreatedAt:  e.timestamp(e.now()),
	}
	if err := e.Repo.InsertShare(ctx, tx, s); err != nil {
		return domain.SharedForest{}, fmt.Errorf("insert share: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeShareCreated, userID, "share", s.ID, userID, events.EventPayload{"share_type": s.ShareType}); err != nil {
		return domain.SharedForest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SharedForest{}, err
	}
	return s, nil
}

// activeShare loads a share by token; inactive links are reported as not found.
func (e Engine) activeShare(ctx context.Context, tx *sql.Tx, token string) (domain.SharedForest, error) {
	s, err := e.Repo.GetShareByToken(ctx, tx, token)
	if err != nil {
		return domain.SharedForest{}, err
	}
	if !s.IsActive {
		return domain.SharedForest{}, repo.ErrNotFound
	}
	return s, nil
}

// PublicForest counts a view and returns the shared summary.
func (e Engine) PublicForest(ctx context.Context, token string) (PublicForest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PublicForest{}, err
	}
	defer tx.Rollback()

	s, err := e.activeShare(ctx, tx, token)
	if err != nil {
		return PublicForest{}, err
	}
	if err := e.Repo.IncrementShareViews(ctx, tx, s.ID); err != nil {
		return PublicForest{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, s.UserID)
	if err != nil {
		return PublicForest{}, err
	}
	streaks, err := e.Repo.GetStreaks(ctx, tx, u.ID)
	if err != nil {
		return PublicForest{}, err
	}
	likes, err := e.Repo.CountLikes(ctx, tx, s.ID)
	if err != nil {
		return PublicForest{}, err
	}
	since := e.today(e.now()).AddDate(0, 0, -6)
	logs, err := e.Repo.ListLogsSince(ctx, tx, u.ID, game.FormatDate(since), recentTreesLimit)
	if err != nil {
		return PublicForest{}, err
	}
	if err := tx.Commit(); err != nil {
		return PublicForest{}, err
	}

	trees := make([]Tree, 0, len(logs))
	for _, l := range logs {
		trees = append(trees, Tree{Tree: l.TreeEmoji, Date: l.Date, Points: l.PointsEarned})
	}
	return PublicForest{
		Username:     u.Username,
		ShareType:    s.ShareType,
		TotalPoints:  u.TotalPoints,
		CurrentLevel: u.CurrentLevel,
		DailyStreak:  streaks.Daily.CurrentCount,
		ViewCount:    s.ViewCount + 1,
		Likes:        likes,
		RecentTrees:  trees,
	}, nil
}

// RevokeShare deactivates one of the user's share links.
func (e Engine) RevokeShare(ctx context.Context, userID, token string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetShareByToken(ctx, tx, token)
	if err != nil {
		return err
	}
	if s.UserID != userID {
		return repo.ErrNotFound
	}
	if err := e.Repo.DeactivateShare(ctx, tx, s.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeShareRevoked, userID, "share", s.ID, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListShares(ctx context.Context, userID string) ([]domain.SharedForest, error) {
	return e.Repo.ListShares(ctx, userID)
}

// LikeShare records one like per user per active share.
func (e Engine) LikeShare(ctx context.Context, userID, token string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := e.activeShare(ctx, tx, token)
	if err != nil {
		return err
	}
	like := domain.ForestLike{
		ID:             uuid.NewString(),
		SharedForestID: s.ID,
		LikerUserID:    userID,
		CreatedAt:      e.timestamp(e.now()),
	}
	if err := e.Repo.InsertLike(ctx, tx, like); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeShareLiked, s.UserID, "share", s.ID, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

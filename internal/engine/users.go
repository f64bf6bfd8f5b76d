package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"forestlog/internal/domain"
	"forestlog/internal/engine/auth"
	"forestlog/internal/events"
	"forestlog/internal/repo"
)

type RegisterInput struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=6,max=72"`
}

// Session is an authenticated user plus a bearer token.
type Session struct {
	User      domain.User
	Token     string
	ExpiresAt time.Time
}

// Register creates a user, seeds its streak rows and signs a session token.
func (e Engine) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return Session{}, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return Session{}, InputError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetUserByEmail(ctx, tx, in.Email); err == nil {
		return Session{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Session{}, err
	}
	if _, err := e.Repo.GetUserByUsername(ctx, tx, in.Username); err == nil {
		return Session{}, fmt.Errorf("%w: username already taken", ErrConflict)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Session{}, err
	}

	now := e.timestamp(e.now())
	u := domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		TotalPoints:  0,
		CurrentLevel: 1,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if isUniqueViolation(err) {
			return Session{}, fmt.Errorf("%w: username or email already registered", ErrConflict)
		}
		return Session{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Repo.SeedStreaks(ctx, tx, u.ID); err != nil {
		return Session{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeUserRegistered, u.ID, "user", u.ID, u.ID, events.EventPayload{"username": u.Username}); err != nil {
		return Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	e.logger().Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return e.newSession(u)
}

// Login verifies credentials. Unknown email and wrong password are indistinguishable.
func (e Engine) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := e.Repo.GetUserByEmail(ctx, nil, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return e.newSession(u)
}

// newSession signs a token for u. Without a signing secret the session carries no token.
func (e Engine) newSession(u domain.User) (Session, error) {
	if len(e.JWTSecret) == 0 {
		return Session{User: u}, nil
	}
	token, exp, err := e.issuer().Issue(u.ID, u.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to its user.
func (e Engine) Authenticate(ctx context.Context, token string) (domain.User, error) {
	claims, err := e.issuer().Parse(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	u, err := e.Repo.GetUser(ctx, nil, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return u, nil
}

// AuthenticateAPIKey resolves a plaintext API key to its owner.
func (e Engine) AuthenticateAPIKey(ctx context.Context, key string) (domain.User, error) {
	if strings.TrimSpace(key) == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	k, err := e.Repo.GetAPIKeyByHash(ctx, auth.HashAPIKey(key))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, nil, k.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return e.Repo.GetUser(ctx, nil, userID)
}

func (e Engine) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return e.Repo.GetUserByUsername(ctx, nil, strings.TrimSpace(username))
}

// ProfileUpdate carries optional profile changes; nil fields are untouched.
type ProfileUpdate struct {
	Username  *string `validate:"omitempty,min=3,max=50"`
	AvatarURL *string `validate:"omitempty,url,max=500"`
	Bio       *string `validate:"omitempty,max=500"`
	IsPublic  *bool
}

func (e Engine) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (domain.User, error) {
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		in.Username = &v
	}
	if in.Bio != nil {
		v := sanitizeText(*in.Bio)
		in.Bio = &v
	}
	if in.AvatarURL != nil {
		v := strings.TrimSpace(*in.AvatarURL)
		in.AvatarURL = &v
	}
	if err := validateInput(in); err != nil {
		return domain.User{}, err
	}

	unlock := e.lockUser(userID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetUser(ctx, tx, userID); err != nil {
		return domain.User{}, err
	}
	if in.Username != nil {
		other, err := e.Repo.GetUserByUsername(ctx, tx, *in.Username)
		if err == nil && other.ID != userID {
			return domain.User{}, fmt.Errorf("%w: username already taken", ErrConflict)
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, err
		}
	}
	fields := repo.ProfileFields{Username: in.Username, AvatarURL: in.AvatarURL, Bio: in.Bio, IsPublic: in.IsPublic}
	if err := e.Repo.UpdateProfile(ctx, tx, userID, fields); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("%w: username already taken", ErrConflict)
		}
		return domain.User{}, err
	}
	payload := events.EventPayload{}
	if in.Username != nil {
		payload["username"] = *in.Username
	}
	if in.IsPublic != nil {
		payload["is_public"] = *in.IsPublic
	}
	if err := e.Events.Append(ctx, tx, events.TypeProfileUpdated, userID, "user", userID, userID, payload); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"forestlog/internal/config"
	"forestlog/internal/domain"
	"forestlog/internal/engine/auth"
	"forestlog/internal/events"
	"forestlog/internal/game"
	"forestlog/internal/repo"
)

var (
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = repo.ErrNotFound
	ErrAlreadyLiked       = repo.ErrAlreadyLiked
)

// InputError reports the first invalid field of a request.
type InputError struct {
	Field   string
	Message string
}

func (e InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e InputError) Unwrap() error { return ErrInvalidInput }

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Rules     game.Rules
	Now       func() time.Time
	Rand      *rand.Rand
	Log       *zap.Logger
	JWTSecret []byte

	locks  *userLocks
	randMu *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Rules:  cfg.Rules(),
		Now:    time.Now,
		Rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		Log:    zap.NewNop(),
		locks:  newUserLocks(),
		randMu: &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// today is the calendar date of now in the configured zone.
func (e Engine) today(now time.Time) time.Time {
	return game.DateOf(now.In(e.Config.Location()))
}

func (e Engine) timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// draw runs fn with the engine's random source held exclusively.
func (e Engine) draw(fn func(r *rand.Rand)) {
	if e.randMu != nil {
		e.randMu.Lock()
		defer e.randMu.Unlock()
	}
	r := e.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	fn(r)
}

func (e Engine) lockUser(userID string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.lock(userID)
}

func (e Engine) issuer() auth.Issuer {
	return auth.Issuer{Secret: e.JWTSecret, TTL: e.Config.TokenTTL(), Now: e.now}
}

var (
	validate  = validator.New()
	sanitizer = bluemonday.StrictPolicy()
)

// sanitizeText strips markup and surrounding whitespace from user text.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return InputError{Field: jsonFieldName(fe.Field()), Message: describeRule(fe)}
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// jsonFieldName turns a Go field name such as TaskText into task_text.
func jsonFieldName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// userLocks serializes mutations per user.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: map[string]*userLock{}}
}

func (l *userLocks) lock(id string) func() {
	l.mu.Lock()
	ul, ok := l.locks[id]
	if !ok {
		ul = &userLock{}
		l.locks[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// RecentEvents returns up to limit of the user's events older than cursor, newest first.
func (e Engine) RecentEvents(ctx context.Context, userID, evtType string, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, cursor, userID, evtType)
}

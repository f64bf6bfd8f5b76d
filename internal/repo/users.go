package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"forestlog/internal/domain"
)

const userColumns = `id,username,email,password_hash,COALESCE(avatar_url,''),COALESCE(bio,''),total_points,current_level,is_public,created_at,last_active_at,last_log_date`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var lastLog sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarURL, &u.Bio,
		&u.TotalPoints, &u.CurrentLevel, &u.IsPublic, &u.CreatedAt, &u.LastActiveAt, &lastLog)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if lastLog.Valid {
		u.LastLogDate = &lastLog.String
	}
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,username,email,password_hash,avatar_url,bio,total_points,current_level,is_public,created_at,last_active_at,last_log_date) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, nullable(u.AvatarURL), nullable(u.Bio),
		u.TotalPoints, u.CurrentLevel, boolInt(u.IsPublic), u.CreatedAt, u.LastActiveAt, nullableStringPtr(u.LastLogDate))
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserByEmail matches case-insensitively.
func (r Repo) GetUserByEmail(ctx context.Context, tx *sql.Tx, email string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower(?)`, strings.TrimSpace(email)))
}

func (r Repo) GetUserByUsername(ctx context.Context, tx *sql.Tx, username string) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

// ProfileFields lists the profile columns to change; nil fields are left as is.
type ProfileFields struct {
	Username  *string
	AvatarURL *string
	Bio       *string
	IsPublic  *bool
}

func (r Repo) UpdateProfile(ctx context.Context, tx *sql.Tx, id string, f ProfileFields) error {
	var fields []string
	var args []any
	if f.Username != nil {
		fields = append(fields, "username=?")
		args = append(args, *f.Username)
	}
	if f.AvatarURL != nil {
		fields = append(fields, "avatar_url=?")
		args = append(args, nullableStringPtr(f.AvatarURL))
	}
	if f.Bio != nil {
		fields = append(fields, "bio=?")
		args = append(args, nullableStringPtr(f.Bio))
	}
	if f.IsPublic != nil {
		fields = append(fields, "is_public=?")
		args = append(args, boolInt(*f.IsPublic))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// UserStats are the counters rewritten after every log.
type UserStats struct {
	TotalPoints  int
	CurrentLevel int
	LastLogDate  string
	LastActiveAt string
}

func (r Repo) UpdateUserStats(ctx context.Context, tx *sql.Tx, id string, s UserStats) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET total_points=?, current_level=?, last_log_date=?, last_active_at=? WHERE id=?`,
		s.TotalPoints, s.CurrentLevel, nullable(s.LastLogDate), s.LastActiveAt, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

package repo

import (
	"context"
	"database/sql"

	"forestlog/internal/domain"
)

const logColumns = `id,user_id,task_text,effort_level,points_earned,tree_emoji,logged_at,date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (domain.Log, error) {
	var l domain.Log
	err := row.Scan(&l.ID, &l.UserID, &l.TaskText, &l.EffortLevel, &l.PointsEarned, &l.TreeEmoji, &l.LoggedAt, &l.Date)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func collectLogs(rows *sql.Rows) ([]domain.Log, error) {
	defer rows.Close()
	res := []domain.Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) InsertLog(ctx context.Context, tx *sql.Tx, l domain.Log) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO logs(`+logColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		l.ID, l.UserID, l.TaskText, l.EffortLevel, l.PointsEarned, l.TreeEmoji, l.LoggedAt, l.Date)
	return err
}

func (r Repo) GetLog(ctx context.Context, tx *sql.Tx, id string) (domain.Log, error) {
	return scanLog(r.q(tx).QueryRowContext(ctx, `SELECT `+logColumns+` FROM logs WHERE id=?`, id))
}

// ListLogs returns a page of the user's logs, newest first.
func (r Repo) ListLogs(ctx context.Context, userID string, limit, offset int) ([]domain.Log, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=? ORDER BY logged_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

func (r Repo) ListLogsByDate(ctx context.Context, userID, date string) ([]domain.Log, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=? AND date=? ORDER BY logged_at DESC, rowid DESC`,
		userID, date)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

// ListLogsSince returns up to limit logs dated on or after since, newest first.
func (r Repo) ListLogsSince(ctx context.Context, tx *sql.Tx, userID, since string, limit int) ([]domain.Log, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+logColumns+` FROM logs WHERE user_id=? AND date>=? ORDER BY logged_at DESC, rowid DESC LIMIT ?`,
		userID, since, limit)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

// DailyPoints sums points per date in [from, to]. Dates without logs are absent.
func (r Repo) DailyPoints(ctx context.Context, userID, from, to string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT date, SUM(points_earned) FROM logs WHERE user_id=? AND date>=? AND date<=? GROUP BY date`,
		userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var date string
		var points int
		if err := rows.Scan(&date, &points); err != nil {
			return nil, err
		}
		res[date] = points
	}
	return res, rows.Err()
}

// CountActiveDays counts distinct log dates in [from, to].
func (r Repo) CountActiveDays(ctx context.Context, tx *sql.Tx, userID, from, to string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(DISTINCT date) FROM logs WHERE user_id=? AND date>=? AND date<=?`,
		userID, from, to).Scan(&n)
	return n, err
}

// DeleteLog removes a log owned by userID.
func (r Repo) DeleteLog(ctx context.Context, tx *sql.Tx, userID, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM logs WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

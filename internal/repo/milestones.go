package repo

import (
	"context"
	"database/sql"

	"forestlog/internal/domain"
)

// ListMilestones returns the user's badges, newest first.
func (r Repo) ListMilestones(ctx context.Context, userID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,badge_name,badge_type,COALESCE(description,''),earned_at FROM milestones WHERE user_id=? ORDER BY earned_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Milestone{}
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.UserID, &m.BadgeName, &m.BadgeType, &m.Description, &m.EarnedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MilestoneNames returns the set of badge names the user already holds.
func (r Repo) MilestoneNames(ctx context.Context, tx *sql.Tx, userID string) (map[string]bool, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT badge_name FROM milestones WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}

// InsertMilestone records a badge unless the user already has it.
// It reports whether a row was written.
func (r Repo) InsertMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO milestones(id,user_id,badge_name,badge_type,description,earned_at) VALUES (?,?,?,?,?,?)
		ON CONFLICT(user_id,badge_name) DO NOTHING`,
		m.ID, m.UserID, m.BadgeName, m.BadgeType, nullable(m.Description), m.EarnedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

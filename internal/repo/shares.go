package repo

import (
	"context"
	"database/sql"

	"forestlog/internal/domain"
)

const shareColumns = `id,user_id,share_token,share_type,is_active,view_count,created_at,expires_at`

func scanShare(row rowScanner) (domain.SharedForest, error) {
	var s domain.SharedForest
	var expires sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.ShareToken, &s.ShareType, &s.IsActive, &s.ViewCount, &s.CreatedAt, &expires)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if expires.Valid {
		s.ExpiresAt = &expires.String
	}
	return s, nil
}

func (r Repo) InsertShare(ctx context.Context, tx *sql.Tx, s domain.SharedForest) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO shared_forests(`+shareColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.UserID, s.ShareToken, s.ShareType, boolInt(s.IsActive), s.ViewCount, s.CreatedAt, nullableStringPtr(s.ExpiresAt))
	return err
}

func (r Repo) GetShareByToken(ctx context.Context, tx *sql.Tx, token string) (domain.SharedForest, error) {
	return scanShare(r.q(tx).QueryRowContext(ctx, `SELECT `+shareColumns+` FROM shared_forests WHERE share_token=?`, token))
}

func (r Repo) ShareTokenExists(ctx context.Context, tx *sql.Tx, token string) (bool, error) {
	var n int
	if err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM shared_forests WHERE share_token=?`, token).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListShares(ctx context.Context, userID string) ([]domain.SharedForest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+shareColumns+` FROM shared_forests WHERE user_id=? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.SharedForest{}
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeactivateShare(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE shared_forests SET is_active=0 WHERE id=?`, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func (r Repo) IncrementShareViews(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE shared_forests SET view_count=view_count+1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// InsertLike records a like. A second like by the same user is ErrAlreadyLiked.
func (r Repo) InsertLike(ctx context.Context, tx *sql.Tx, l domain.ForestLike) error {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO forest_likes(id,shared_forest_id,liker_user_id,created_at) VALUES (?,?,?,?)
		ON CONFLICT(shared_forest_id,liker_user_id) DO NOTHING`, l.ID, l.SharedForestID, l.LikerUserID, l.CreatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyLiked
	}
	return nil
}

func (r Repo) CountLikes(ctx context.Context, tx *sql.Tx, shareID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM forest_likes WHERE shared_forest_id=?`, shareID).Scan(&n)
	return n, err
}

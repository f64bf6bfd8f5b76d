package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"forestlog/internal/game"
)

// SeedStreaks creates one zero-count row per streak type.
func (r Repo) SeedStreaks(ctx context.Context, tx *sql.Tx, userID string) error {
	for _, t := range game.StreakTypes {
		if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO streaks(user_id,streak_type,current_count,best_count,metadata_json) VALUES (?,?,0,0,'{}')
			ON CONFLICT(user_id,streak_type) DO NOTHING`, userID, string(t)); err != nil {
			return fmt.Errorf("seed %s streak: %w", t, err)
		}
	}
	return nil
}

// GetStreaks loads the user's streak set. Missing rows come back zeroed.
func (r Repo) GetStreaks(ctx context.Context, tx *sql.Tx, userID string) (game.StreakSet, error) {
	set := game.NewStreakSet()
	rows, err := r.q(tx).QueryContext(ctx, `SELECT streak_type,current_count,best_count,started_at,last_updated,metadata_json FROM streaks WHERE user_id=?`, userID)
	if err != nil {
		return set, err
	}
	defer rows.Close()
	for rows.Next() {
		var st game.Streak
		var typ, meta string
		var started, updated sql.NullString
		if err := rows.Scan(&typ, &st.CurrentCount, &st.BestCount, &started, &updated, &meta); err != nil {
			return set, err
		}
		parsed, err := game.ParseStreakType(typ)
		if err != nil {
			return set, err
		}
		st.Type = parsed
		if st.StartedAt, err = parseNullDate(started); err != nil {
			return set, err
		}
		if st.LastUpdated, err = parseNullDate(updated); err != nil {
			return set, err
		}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &st.Meta); err != nil {
				return set, fmt.Errorf("decode %s streak metadata: %w", typ, err)
			}
		}
		set.Set(st)
	}
	return set, rows.Err()
}

// UpsertStreak writes one streak row.
func (r Repo) UpsertStreak(ctx context.Context, tx *sql.Tx, userID string, st game.Streak) error {
	meta, err := json.Marshal(st.Meta)
	if err != nil {
		return fmt.Errorf("encode streak metadata: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO streaks(user_id,streak_type,current_count,best_count,started_at,last_updated,metadata_json) VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(user_id,streak_type) DO UPDATE SET current_count=excluded.current_count, best_count=excluded.best_count,
		started_at=excluded.started_at, last_updated=excluded.last_updated, metadata_json=excluded.metadata_json`,
		userID, string(st.Type), st.CurrentCount, st.BestCount, formatNullDate(st.StartedAt), formatNullDate(st.LastUpdated), string(meta))
	return err
}

func parseNullDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := game.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatNullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return game.FormatDate(*t)
}

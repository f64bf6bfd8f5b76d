package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeUserRegistered  = "user.registered"
	TypeProfileUpdated  = "user.profile_updated"
	TypeLogCreated      = "log.created"
	TypeLogDeleted      = "log.deleted"
	TypeStreakReset     = "streak.reset"
	TypeLevelUp         = "level.up"
	TypeMilestoneEarned = "milestone.earned"
	TypeShareCreated    = "share.created"
	TypeShareRevoked    = "share.revoked"
	TypeShareLiked      = "share.liked"
	TypeAPIKeyCreated   = "api_key.created"
	TypeAPIKeyDeleted   = "api_key.deleted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(userID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

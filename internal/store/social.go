package store

import (
	"context"
	"time"
)

// AddFriend records a one-directional friendship (mirroring the client's
// own model: each user maintains their own friends list).
func (s *Store) AddFriend(ctx context.Context, userID, friendID int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id, blocked) VALUES (?, ?, 0)
		ON CONFLICT (user_id, friend_id) DO UPDATE SET blocked = 0
	`, userID, friendID)
	return err
}

// RemoveFriend deletes a friendship row entirely.
func (s *Store) RemoveFriend(ctx context.Context, userID, friendID int32) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM friendships WHERE user_id = ? AND friend_id = ?`, userID, friendID)
	return err
}

// Friends returns every id a user has friended, always implicitly including
// the bot account (id 1) and the user's own id, matching the source
// server's friends_from_sql bootstrap semantics.
func (s *Store) Friends(ctx context.Context, userID int32) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT friend_id FROM friendships WHERE user_id = ? AND blocked = 0`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := map[int32]struct{}{1: {}, userID: {}}
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]int32, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

// QueueMail stores a private message for delivery the next time the
// recipient logs in; the login packet sequence replays these.
func (s *Store) QueueMail(ctx context.Context, fromID, toID int32, msg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mail (from_id, to_id, msg, created_at, delivered) VALUES (?, ?, ?, ?, 0)
	`, fromID, toID, msg, time.Now().Unix())
	return err
}

// MailEntry is one queued offline message.
type MailEntry struct {
	ID     int64
	FromID int32
	Msg    string
}

// PendingMail returns and marks delivered every message queued for a user.
func (s *Store) PendingMail(ctx context.Context, toID int32) ([]MailEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, msg FROM mail WHERE to_id = ? AND delivered = 0 ORDER BY created_at ASC
	`, toID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MailEntry
	var ids []int64
	for rows.Next() {
		var m MailEntry
		if err := rows.Scan(&m.ID, &m.FromID, &m.Msg); err != nil {
			return nil, err
		}
		entries = append(entries, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `UPDATE mail SET delivered = 1 WHERE id = ?`, id); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// AwardAchievement records an unlock; it's a no-op if already owned.
func (s *Store) AwardAchievement(ctx context.Context, userID int32, achievementID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, awarded_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID, achievementID, time.Now().Unix())
	return err
}

// OwnedAchievements returns the set of achievement ids a user already has.
func (s *Store) OwnedAchievements(ctx context.Context, userID int32) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT achievement_id FROM user_achievements WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owned := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	return owned, rows.Err()
}

// Achievement is a persisted achievement definition.
type Achievement struct {
	ID          int64
	Name        string
	Description string
}

// UpsertAchievement inserts or finds an achievement definition by name,
// returning its id -- used to seed the fixed predicate set at startup.
func (s *Store) UpsertAchievement(ctx context.Context, name, description string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (name, description) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET description = excluded.description
	`, name, description); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM achievements WHERE name = ?`, name).Scan(&id)
	return id, err
}

// AuditLog records an operator-visible event, typically an automatic
// restriction. Rows beyond the most recent 10000 are purged, matching the
// teacher's own audit_log bound.
func (s *Store) AuditLog(ctx context.Context, userID int32, action, detail string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, detail, created_at) VALUES (?, ?, ?, ?)
	`, userID, action, detail, time.Now().Unix()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE id NOT IN (SELECT id FROM audit_log ORDER BY id DESC LIMIT 10000)
	`)
	return err
}

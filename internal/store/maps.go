package store

import (
	"context"
	"database/sql"
	"errors"
)

// Map ranked-status codes, matching the source server's convention closely
// enough for the score pipeline's "ranked or approved" checks.
const (
	MapStatusPending  int = 0
	MapStatusRanked   int = 1
	MapStatusApproved int = 2
	MapStatusLoved    int = 3
)

// Map is a persisted beatmap row.
type Map struct {
	MD5     string
	MapID   int32
	SetID   int32
	Artist  string
	Title   string
	Version string
	Creator string
	Status  int
	Plays   int64
	Passes  int64
}

func (m Map) RankedOrApproved() bool {
	return m.Status == MapStatusRanked || m.Status == MapStatusApproved
}

// FindMapByMD5 looks up a beatmap by its file checksum, as submitted by the client.
func (s *Store) FindMapByMD5(ctx context.Context, md5 string) (Map, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT md5, map_id, set_id, artist, title, version, creator, status, plays, passes
		FROM maps WHERE md5 = ?
	`, md5)
	var m Map
	err := row.Scan(&m.MD5, &m.MapID, &m.SetID, &m.Artist, &m.Title, &m.Version, &m.Creator, &m.Status, &m.Plays, &m.Passes)
	if errors.Is(err, sql.ErrNoRows) {
		return Map{}, ErrNotFound
	}
	return m, err
}

// UpsertMap inserts or replaces a beatmap's metadata row.
func (s *Store) UpsertMap(ctx context.Context, m Map) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maps (md5, map_id, set_id, artist, title, version, creator, status, plays, passes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (md5) DO UPDATE SET
			map_id = excluded.map_id, set_id = excluded.set_id, artist = excluded.artist,
			title = excluded.title, version = excluded.version, creator = excluded.creator,
			status = excluded.status
	`, m.MD5, m.MapID, m.SetID, m.Artist, m.Title, m.Version, m.Creator, m.Status, m.Plays, m.Passes)
	return err
}

// IncrementMapPlays bumps the play counter, and the pass counter when passed is true.
func (s *Store) IncrementMapPlays(ctx context.Context, md5 string, passed bool) error {
	if passed {
		_, err := s.db.ExecContext(ctx, `UPDATE maps SET plays = plays + 1, passes = passes + 1 WHERE md5 = ?`, md5)
		return err
	}
	_, err := s.db.ExecContext(ctx, `UPDATE maps SET plays = plays + 1 WHERE md5 = ?`, md5)
	return err
}

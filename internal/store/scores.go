package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Submission status of a score row.
const (
	StatusFailed    int = 0
	StatusSubmitted int = 1
	StatusBest      int = 2
)

// Score is a persisted score row.
type Score struct {
	ID             int64
	MapMD5         string
	UserID         int32
	Score          int64
	PP             float64
	Accuracy       float64
	MaxCombo       int32
	Mods           int32
	N300, N100, N50, NGeki, NKatu, NMiss int32
	Grade          string
	Status         int
	Mode           uint8
	Passed         bool
	Perfect        bool
	PlayTime       int64
	TimeElapsedMS  int64
	ClientFlags    int32
	OnlineChecksum string
	HasReplay      bool
}

const scoreColumns = `id, map_md5, user_id, score, pp, acc, max_combo, mods, n300, n100, n50, ngeki, nkatu, nmiss, grade, status, mode, passed, perfect, play_time, time_elapsed, client_flags, online_checksum, has_replay`

func scanScores(rows *sql.Rows) ([]Score, error) {
	var out []Score
	for rows.Next() {
		sc, err := scanScoreRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanScoreRow(row interface{ Scan(...any) error }) (Score, error) {
	var sc Score
	err := row.Scan(&sc.ID, &sc.MapMD5, &sc.UserID, &sc.Score, &sc.PP, &sc.Accuracy, &sc.MaxCombo, &sc.Mods,
		&sc.N300, &sc.N100, &sc.N50, &sc.NGeki, &sc.NKatu, &sc.NMiss, &sc.Grade, &sc.Status, &sc.Mode,
		&sc.Passed, &sc.Perfect, &sc.PlayTime, &sc.TimeElapsedMS, &sc.ClientFlags, &sc.OnlineChecksum, &sc.HasReplay)
	return sc, err
}

// FindByChecksum is the duplicate-detection lookup: an exact match of the
// online-checksum against existing rows for the mode.
func (s *Store) FindByChecksum(ctx context.Context, mode uint8, checksum string) (Score, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scoreColumns+` FROM scores WHERE mode = ? AND online_checksum = ? LIMIT 1
	`, mode, checksum)
	sc, err := scanScoreRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Score{}, ErrNotFound
	}
	return sc, err
}

// FindBest returns the current status=best row for (user, map, mode), if any.
func (s *Store) FindBest(ctx context.Context, userID int32, mapMD5 string, mode uint8) (Score, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scoreColumns+` FROM scores
		WHERE user_id = ? AND map_md5 = ? AND mode = ? AND status = ?
		LIMIT 1
	`, userID, mapMD5, mode, StatusBest)
	sc, err := scanScoreRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Score{}, ErrNotFound
	}
	return sc, err
}

// DemoteToSubmitted downgrades a previously-best row when a new best replaces it.
func (s *Store) DemoteToSubmitted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scores SET status = ? WHERE id = ?`, StatusSubmitted, id)
	return err
}

// InsertScore inserts a new score row and returns it with its assigned id.
func (s *Store) InsertScore(ctx context.Context, sc Score) (Score, error) {
	if sc.PlayTime == 0 {
		sc.PlayTime = time.Now().Unix()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scores (map_md5, user_id, score, pp, acc, max_combo, mods, n300, n100, n50, ngeki, nkatu, nmiss,
			grade, status, mode, passed, perfect, play_time, time_elapsed, client_flags, online_checksum, has_replay)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sc.MapMD5, sc.UserID, sc.Score, sc.PP, sc.Accuracy, sc.MaxCombo, sc.Mods, sc.N300, sc.N100, sc.N50,
		sc.NGeki, sc.NKatu, sc.NMiss, sc.Grade, sc.Status, sc.Mode, sc.Passed, sc.Perfect, sc.PlayTime,
		sc.TimeElapsedMS, sc.ClientFlags, sc.OnlineChecksum, sc.HasReplay)
	if err != nil {
		return Score{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Score{}, err
	}
	sc.ID = id
	return sc, nil
}

// MarkReplay flips has_replay, called once the replay blob is persisted to disk.
func (s *Store) MarkReplay(ctx context.Context, id int64, has bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scores SET has_replay = ? WHERE id = ?`, has, id)
	return err
}

// RankOnMap returns 1-based global rank of a new result among all
// unrestricted best scores on the same map+mode, used for the rank-1
// announcement and the chart's map-ranking block. byPP selects the ranking
// metric: performance-points for the autoplay/relax modes, score otherwise.
func (s *Store) RankOnMap(ctx context.Context, mapMD5 string, mode uint8, score int64, pp float64, byPP bool) (int64, error) {
	metric, arg := "sc.score > ?", any(score)
	if byPP {
		metric, arg = "sc.pp > ?", any(pp)
	}
	var rank int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) + 1
		FROM scores sc
		JOIN users u ON u.id = sc.user_id
		WHERE sc.map_md5 = ? AND sc.mode = ? AND sc.status = ? AND `+metric+` AND (u.priv & ?) = 0
	`, mapMD5, mode, StatusBest, arg, PrivRestricted).Scan(&rank)
	return rank, err
}

// PreviousNumberOne returns the current rank-1 holder on a map (before the
// new score is inserted), for the rank-1 announcement's "previous #1" field.
func (s *Store) PreviousNumberOne(ctx context.Context, mapMD5 string, mode uint8, byPP bool) (Score, error) {
	order := "sc.score"
	if byPP {
		order = "sc.pp"
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scoreColumns+`
		FROM scores sc
		JOIN users u ON u.id = sc.user_id
		WHERE sc.map_md5 = ? AND sc.mode = ? AND sc.status = ? AND (u.priv & ?) = 0
		ORDER BY `+order+` DESC
		LIMIT 1
	`, mapMD5, mode, StatusBest, PrivRestricted)
	sc, err := scanScoreRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Score{}, ErrNotFound
	}
	return sc, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
)

// Stats is one (user, mode) row of aggregate statistics.
type Stats struct {
	UserID    int32
	Mode      uint8
	TotalScore int64
	RankedScore int64
	PP        float64
	Accuracy  float64
	Plays     int64
	Playtime  int64
	MaxCombo  int32
}

// GetStats fetches a user's stats row for one mode, creating a zeroed one
// implicitly if none exists yet (every account has stats rows for all
// modes from registration; this is a defensive fallback for older test
// fixtures that only seed some rows).
func (s *Store) GetStats(ctx context.Context, userID int32, mode uint8) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, mode, tscore, rscore, pp, acc, plays, playtime, max_combo
		FROM stats WHERE user_id = ? AND mode = ?
	`, userID, mode)
	var st Stats
	err := row.Scan(&st.UserID, &st.Mode, &st.TotalScore, &st.RankedScore, &st.PP, &st.Accuracy, &st.Plays, &st.Playtime, &st.MaxCombo)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{UserID: userID, Mode: mode}, nil
	}
	return st, err
}

// EnsureStatsRows creates zeroed stats rows for every mode a user doesn't
// have one yet, called once at account creation.
func (s *Store) EnsureStatsRows(ctx context.Context, userID int32, modes []uint8) error {
	for _, mode := range modes {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO stats (user_id, mode) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, userID, mode); err != nil {
			return err
		}
	}
	return nil
}

// ApplyStatsDelta updates the additive fields of a stats row: playtime,
// plays, total score and (conditionally, by the caller already having
// decided so) max combo. Ranked score and weighted pp/acc are rewritten in
// full by SetRankedAggregate since they are recomputed from scratch, not
// accumulated.
func (s *Store) ApplyStatsDelta(ctx context.Context, userID int32, mode uint8, playtimeDelta, scoreDelta int64, maxCombo int32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stats
		SET playtime = playtime + ?, plays = plays + 1, tscore = tscore + ?, max_combo = MAX(max_combo, ?)
		WHERE user_id = ? AND mode = ?
	`, playtimeDelta, scoreDelta, maxCombo, userID, mode)
	return err
}

// SetRankedAggregate overwrites ranked score, weighted pp and weighted
// accuracy in one statement -- these three are recomputed wholesale on
// every `best` submission, not accumulated incrementally.
func (s *Store) SetRankedAggregate(ctx context.Context, userID int32, mode uint8, rankedScore int64, pp, acc float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stats SET rscore = ?, pp = ?, acc = ? WHERE user_id = ? AND mode = ?
	`, rankedScore, pp, acc, userID, mode)
	return err
}

// TopScoresForWeighting returns up to limit of a player's `best` scores on
// ranked/approved maps in the given mode, ordered by pp descending -- the
// exact shape the weighted-accuracy/weighted-pp formulas consume.
func (s *Store) TopScoresForWeighting(ctx context.Context, userID int32, mode uint8, limit int) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scoreColumns+`
		FROM scores sc
		JOIN maps m ON m.md5 = sc.map_md5
		WHERE sc.user_id = ? AND sc.mode = ? AND sc.status = 2 AND m.status IN (1, 2)
		ORDER BY sc.pp DESC
		LIMIT ?
	`, userID, mode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScores(rows)
}

// CountRankedScores is the total count of `best` rows on ranked/approved
// maps for (user, mode); this is N in the pp-weight log bonus formula.
func (s *Store) CountRankedScores(ctx context.Context, userID int32, mode uint8) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM scores sc
		JOIN maps m ON m.md5 = sc.map_md5
		WHERE sc.user_id = ? AND sc.mode = ? AND sc.status = 2 AND m.status IN (1, 2)
	`, userID, mode).Scan(&n)
	return n, err
}

// RankedPlayer is one leaderboard row: a user and their weighted pp.
type RankedPlayer struct {
	UserID int32
	Name   string
	PP     float64
}

// TopPlayersByPP returns up to limit unrestricted players ordered by
// weighted pp descending for one mode, for the JSON leaderboard.
func (s *Store) TopPlayersByPP(ctx context.Context, mode uint8, limit int) ([]RankedPlayer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, st.pp
		FROM stats st
		JOIN users u ON u.id = st.user_id
		WHERE st.mode = ? AND (u.priv & ?) = 0
		ORDER BY st.pp DESC
		LIMIT ?
	`, mode, PrivRestricted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RankedPlayer
	for rows.Next() {
		var r RankedPlayer
		if err := rows.Scan(&r.UserID, &r.Name, &r.PP); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BumpGrade increments the histogram column for newGrade and, if
// prevGrade is non-empty and different, decrements its column.
func (s *Store) BumpGrade(ctx context.Context, userID int32, mode uint8, newGrade, prevGrade string) error {
	col, ok := gradeColumn(newGrade)
	if ok {
		if _, err := s.db.ExecContext(ctx, `UPDATE stats SET `+col+` = `+col+` + 1 WHERE user_id = ? AND mode = ?`, userID, mode); err != nil {
			return err
		}
	}
	if prevGrade != "" && prevGrade != newGrade {
		if pcol, ok := gradeColumn(prevGrade); ok {
			if _, err := s.db.ExecContext(ctx, `UPDATE stats SET `+pcol+` = MAX(`+pcol+` - 1, 0) WHERE user_id = ? AND mode = ?`, userID, mode); err != nil {
				return err
			}
		}
	}
	return nil
}

func gradeColumn(grade string) (string, bool) {
	switch grade {
	case "XH":
		return "xh_count", true
	case "X":
		return "x_count", true
	case "SH":
		return "sh_count", true
	case "S":
		return "s_count", true
	case "A":
		return "a_count", true
	default:
		return "", false
	}
}

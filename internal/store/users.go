package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Privilege bits. Kept small and opaque -- callers test individual bits,
// nothing here assigns meaning beyond what the names say.
const (
	PrivNormal      int64 = 1 << 0
	PrivVerified    int64 = 1 << 1
	PrivRestricted  int64 = 1 << 2
	PrivStaff       int64 = 1 << 3
	PrivWhitelisted int64 = 1 << 4 // exempt from the pp-cap autoban
)

// User is a persisted account row.
type User struct {
	ID           int32
	Name         string
	SafeName     string
	Email        string
	PasswordHash string
	Country      string
	Priv         int64
	SilenceEnd   int64
	CreationTime int64
}

func (u User) Restricted() bool { return u.Priv&PrivRestricted != 0 }

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.SafeName, &u.Email, &u.PasswordHash, &u.Country, &u.Priv, &u.SilenceEnd, &u.CreationTime)
	return u, err
}

const userColumns = `id, name, safe_name, email, pw_bcrypt, country, priv, silence_end, creation_time`

// FindUserBySafeName looks up an account by its normalized (lowercase,
// spaces->underscores) name.
func (s *Store) FindUserBySafeName(ctx context.Context, safeName string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE safe_name = ?`, safeName)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// FindUserByID looks up an account by numeric id.
func (s *Store) FindUserByID(ctx context.Context, id int32) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// CreateUser inserts a brand-new account and returns it with its assigned id.
func (s *Store) CreateUser(ctx context.Context, name, safeName, email, pwBcrypt string) (User, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, safe_name, email, pw_bcrypt, country, priv, silence_end, creation_time)
		VALUES (?, ?, ?, ?, 'xx', ?, 0, ?)
	`, name, safeName, email, pwBcrypt, PrivNormal, now)
	if err != nil {
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return s.FindUserByID(ctx, int32(id))
}

// SetPriv overwrites a user's privilege bitset.
func (s *Store) SetPriv(ctx context.Context, userID int32, priv int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET priv = ? WHERE id = ?`, priv, userID)
	return err
}

// SetSilenceEnd overwrites a user's silence expiry (unix seconds, 0 = not silenced).
func (s *Store) SetSilenceEnd(ctx context.Context, userID int32, end int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET silence_end = ? WHERE id = ?`, end, userID)
	return err
}

// Restrict sets the PrivRestricted bit; PrivVerified and every other bit
// are left untouched -- restriction hides a user from leaderboards without
// discarding their verification history.
func (s *Store) Restrict(ctx context.Context, userID int32) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET priv = priv | ? WHERE id = ?`, PrivRestricted, userID)
	return err
}

// CountUnrestrictedWithGreaterPP backs the global rank computation:
// rank = 1 + count of unrestricted users with strictly greater pp in the
// same mode.
func (s *Store) CountUnrestrictedWithGreaterPP(ctx context.Context, mode uint8, pp float64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM stats st
		JOIN users u ON u.id = st.user_id
		WHERE st.mode = ? AND st.pp > ? AND (u.priv & ?) = 0
	`, mode, pp, PrivRestricted).Scan(&count)
	return count, err
}

// HashOwner pairs a user id with how their priv stood the last time a given
// hardware hash was recorded against it, for the multi-accounting check.
type HashOwner struct {
	UserID     int32
	Restricted bool
}

// FindHashOwners returns every account that has ever recorded this exact
// hardware hash tuple, excluding the account itself.
func (s *Store) FindHashOwners(ctx context.Context, excludeUserID int32, adaptersMD5, uninstallMD5, diskSerialMD5 string) ([]HashOwner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, (u.priv & ?) != 0
		FROM client_hashes ch
		JOIN users u ON u.id = ch.user_id
		WHERE ch.adapters_md5 = ? AND ch.uninstall_md5 = ? AND ch.disk_serial_md5 = ? AND ch.user_id != ?
	`, PrivRestricted, adaptersMD5, uninstallMD5, diskSerialMD5, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []HashOwner
	for rows.Next() {
		var h HashOwner
		if err := rows.Scan(&h.UserID, &h.Restricted); err != nil {
			return nil, err
		}
		owners = append(owners, h)
	}
	return owners, rows.Err()
}

// UpsertClientHash records (or bumps the occurrence counter for) one login's
// hardware hash tuple.
func (s *Store) UpsertClientHash(ctx context.Context, userID int32, osuPathMD5, adapters, adaptersMD5, uninstallMD5, diskSerialMD5 string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_hashes (user_id, osu_path_md5, adapters, adapters_md5, uninstall_md5, disk_serial_md5, occurrences, latest_time)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id, osu_path_md5, adapters_md5, uninstall_md5, disk_serial_md5)
		DO UPDATE SET occurrences = occurrences + 1, latest_time = excluded.latest_time
	`, userID, osuPathMD5, adapters, adaptersMD5, uninstallMD5, diskSerialMD5, time.Now().Unix())
	return err
}

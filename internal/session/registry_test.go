package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sutekina/osu-gulag/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st, 30*time.Second), st
}

func seedUser(t *testing.T, st *store.Store, name, passwordMD5 string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordMD5), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error: %v", err)
	}
	u, err := st.CreateUser(context.Background(), name, normalizeName(name), name+"@example.com", string(hash))
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	return u
}

func freshMeta() ClientMeta {
	return ClientMeta{
		BuildDate:     time.Now().Format("20060102"),
		UTCOffset:     -5,
		OsuPathMD5:    "a",
		AdaptersRaw:   "b",
		AdaptersMD5:   "c",
		UninstallMD5:  "d",
		DiskSerialMD5: "e",
	}
}

func TestLoginFresh(t *testing.T) {
	reg, st := newTestRegistry(t)
	seedUser(t, st, "alice", "5f4dcc3b5aa765d61d8327deb882cf99")

	sess, token, err := reg.Login(context.Background(),
		Credentials{Username: "alice", PasswordMD5: "5f4dcc3b5aa765d61d8327deb882cf99"},
		freshMeta(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if sess.ID <= 0 {
		t.Fatalf("expected positive id, got %d", sess.ID)
	}
	if len(token) != 36 {
		t.Fatalf("expected 36-char token, got %q (%d)", token, len(token))
	}
	if reg.ByName("alice") != sess {
		t.Fatalf("session not findable via ByName")
	}
	if reg.ByToken(token) != sess {
		t.Fatalf("session not findable via ByToken")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, _, err := reg.Login(context.Background(), Credentials{Username: "ghost", PasswordMD5: "x"}, freshMeta(), "1.2.3.4")
	rej, ok := err.(*RejectionError)
	if !ok {
		t.Fatalf("expected *RejectionError, got %v", err)
	}
	if rej.Code != RejectionUnknownUser {
		t.Fatalf("got code %d want %d", rej.Code, RejectionUnknownUser)
	}
}

func TestLoginBadPasswordDoesNotPopulateCache(t *testing.T) {
	reg, st := newTestRegistry(t)
	u := seedUser(t, st, "bob", "correctmd5")

	_, _, err := reg.Login(context.Background(), Credentials{Username: "bob", PasswordMD5: "wrongmd5"}, freshMeta(), "1.2.3.4")
	if err == nil {
		t.Fatalf("expected rejection for wrong password")
	}

	reg.cacheMu.Lock()
	_, cached := reg.bcryptToMD5[u.PasswordHash]
	reg.cacheMu.Unlock()
	if cached {
		t.Fatalf("cache must not be populated on a failed attempt")
	}

	// correct password still works afterwards
	_, _, err = reg.Login(context.Background(), Credentials{Username: "bob", PasswordMD5: "correctmd5"}, freshMeta(), "1.2.3.4")
	if err != nil {
		t.Fatalf("Login() with correct password error: %v", err)
	}
}

func TestLoginOutdatedClientRejected(t *testing.T) {
	reg, st := newTestRegistry(t)
	seedUser(t, st, "carol", "md5")

	meta := freshMeta()
	meta.BuildDate = "20000101"
	_, _, err := reg.Login(context.Background(), Credentials{Username: "carol", PasswordMD5: "md5"}, meta, "1.2.3.4")
	rej, ok := err.(*RejectionError)
	if !ok || rej.Code != RejectionOutdatedClient {
		t.Fatalf("got %v, want RejectionOutdatedClient", err)
	}
}

func TestLoginRestrictedAccountRejected(t *testing.T) {
	reg, st := newTestRegistry(t)
	u := seedUser(t, st, "dave", "md5")
	if err := st.Restrict(context.Background(), u.ID); err != nil {
		t.Fatalf("Restrict() error: %v", err)
	}

	_, _, err := reg.Login(context.Background(), Credentials{Username: "dave", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	rej, ok := err.(*RejectionError)
	if !ok || rej.Code != RejectionRestricted {
		t.Fatalf("got %v, want RejectionRestricted", err)
	}
}

func TestLoginAlreadyOnlineWithinTimeoutRejected(t *testing.T) {
	reg, st := newTestRegistry(t)
	seedUser(t, st, "erin", "md5")

	first, _, err := reg.Login(context.Background(), Credentials{Username: "erin", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	if err != nil {
		t.Fatalf("first Login() error: %v", err)
	}
	first.Mu.Lock()
	first.Touch()
	first.Mu.Unlock()

	_, _, err = reg.Login(context.Background(), Credentials{Username: "erin", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	if err == nil {
		t.Fatalf("expected already-logged-in rejection")
	}
}

func TestLoginGhostReclaimAfterIdleTimeout(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	defer st.Close()
	reg := NewRegistry(st, 10*time.Millisecond)
	seedUser(t, st, "frank", "md5")

	first, firstToken, err := reg.Login(context.Background(), Credentials{Username: "frank", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	if err != nil {
		t.Fatalf("first Login() error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	second, _, err := reg.Login(context.Background(), Credentials{Username: "frank", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	if err != nil {
		t.Fatalf("second Login() error: %v", err)
	}
	if reg.ByToken(firstToken) != nil {
		t.Fatalf("ghost session should have been evicted")
	}
	if reg.ByName("frank") != second {
		t.Fatalf("registry should now point at the new session")
	}
	_ = first
}

func TestFirstLoginGrantsVerifiedPrivilege(t *testing.T) {
	reg, st := newTestRegistry(t)
	u := seedUser(t, st, "grace", "md5")
	if u.Priv&store.PrivVerified != 0 {
		t.Fatalf("fixture account should start unverified")
	}

	sess, _, err := reg.Login(context.Background(), Credentials{Username: "grace", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if sess.Priv&store.PrivVerified == 0 {
		t.Fatalf("expected PrivVerified to be granted on first login")
	}
}

func TestMultiAccountLoginRejectedForUnverifiedSharingRestrictedHash(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	bad := seedUser(t, st, "banned_one", "md5")
	st.Restrict(ctx, bad.ID)
	st.UpsertClientHash(ctx, bad.ID, "a", "b", "shared-adapters", "shared-uninstall", "shared-disk")

	seedUser(t, st, "alt_account", "md5")

	meta := freshMeta()
	meta.AdaptersMD5 = "shared-adapters"
	meta.UninstallMD5 = "shared-uninstall"
	meta.DiskSerialMD5 = "shared-disk"

	_, _, err := reg.Login(ctx, Credentials{Username: "alt_account", PasswordMD5: "md5"}, meta, "1.2.3.4")
	if err == nil {
		t.Fatalf("expected multi-accounting rejection")
	}
}

func TestBroadcastExcludesListedSessions(t *testing.T) {
	reg, st := newTestRegistry(t)
	seedUser(t, st, "hank", "md5")
	seedUser(t, st, "iris", "md5")

	s1, _, _ := reg.Login(context.Background(), Credentials{Username: "hank", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")
	s2, _, _ := reg.Login(context.Background(), Credentials{Username: "iris", PasswordMD5: "md5"}, freshMeta(), "1.2.3.4")

	reg.Broadcast([]byte("hi"), map[int32]struct{}{s1.ID: {}})

	s1.Mu.Lock()
	b1 := s1.DrainOutbound()
	s1.Mu.Unlock()
	if b1 != nil {
		t.Fatalf("excluded session should not receive broadcast, got %v", b1)
	}

	s2.Mu.Lock()
	b2 := s2.DrainOutbound()
	s2.Mu.Unlock()
	if string(b2) != "hi" {
		t.Fatalf("got %q want %q", b2, "hi")
	}
}

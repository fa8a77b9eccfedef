package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sutekina/osu-gulag/internal/store"
)

// Rejection codes returned in the login reply's user-id field.
const (
	RejectionUnknownUser       int32 = -1
	RejectionOutdatedClient    int32 = -2
	RejectionRestricted        int32 = -3
	RejectionGenericError      int32 = -5
	RejectionNeedsVerification int32 = -8
)

// RejectionError carries one of the negative-id rejection codes above back
// to the gateway, which encodes it into the login reply instead of creating
// a session.
type RejectionError struct {
	Code   int32
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func reject(code int32, reason string) error {
	return &RejectionError{Code: code, Reason: reason}
}

// ClientMeta is the parsed pipe/colon-separated metadata line from a login
// request body.
type ClientMeta struct {
	BuildDate        string
	UTCOffset        int32
	DisplayCity      bool
	OsuPathMD5       string
	AdaptersRaw      string
	AdaptersMD5      string
	UninstallMD5     string
	DiskSerialMD5    string
	BlockNonFriendDM bool
}

// Credentials are the first two lines of a login request body.
type Credentials struct {
	Username    string
	PasswordMD5 string
}

// maxClientAgeDays bounds how stale a client build may be before login is
// refused with RejectionOutdatedClient, matching the 60-day staleness
// window the original server enforces.
const maxClientAgeDays = 60

// Registry is the process-global set of logged-in sessions, indexed by
// token, numeric id and normalized name.
type Registry struct {
	loginMu sync.Mutex // serializes the is-online-check + insert TOCTOU window

	mu       sync.RWMutex
	byToken  map[string]*Session
	byID     map[int32]*Session
	byName   map[string]*Session

	store         *store.Store
	idleThreshold time.Duration

	cacheMu    sync.Mutex
	bcryptToMD5 map[string]string // bcrypt hash -> last-verified password md5

	bot *Session
}

// NewRegistry constructs an empty registry backed by st, with idleThreshold
// governing both ghost-session eviction at login and the inactivity sweeper.
func NewRegistry(st *store.Store, idleThreshold time.Duration) *Registry {
	r := &Registry{
		byToken:     make(map[string]*Session),
		byID:        make(map[int32]*Session),
		byName:      make(map[string]*Session),
		store:       st,
		idleThreshold: idleThreshold,
		bcryptToMD5: make(map[string]string),
	}
	r.bot = NewSession(BotID, "BanchoBot", "banchobot", "", store.PrivNormal|store.PrivVerified|store.PrivStaff)
	r.bot.LastReceived = time.Now().Add(365 * 24 * time.Hour) // never considered idle
	r.byID[BotID] = r.bot
	r.byName[r.bot.SafeName] = r.bot
	return r
}

// Bot returns the always-online bot session.
func (r *Registry) Bot() *Session { return r.bot }

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// generateToken mints the opaque session token: a random UUID, the 36-char
// shape the client's cho-token header round-trips.
func generateToken() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// verifyPassword checks md5 against the account's stored bcrypt hash,
// consulting (and on success, populating) the in-memory cache so repeat
// logins skip the bcrypt cost. The cache is never populated on a failed
// attempt.
func (r *Registry) verifyPassword(bcryptHash, md5 string) bool {
	r.cacheMu.Lock()
	cached, ok := r.bcryptToMD5[bcryptHash]
	r.cacheMu.Unlock()
	if ok && cached == md5 {
		return true
	}

	if err := bcrypt.CompareHashAndPassword([]byte(bcryptHash), []byte(md5)); err != nil {
		return false
	}

	r.cacheMu.Lock()
	r.bcryptToMD5[bcryptHash] = md5
	r.cacheMu.Unlock()
	return true
}

// CheckPassword verifies a password md5 against a stored bcrypt hash using
// the registry's verification cache, for re-authenticating endpoints like
// score submission that carry credentials on every request.
func (r *Registry) CheckPassword(bcryptHash, md5 string) bool {
	return r.verifyPassword(bcryptHash, md5)
}

// Login performs the full login flow, including the hardware-hash
// multi-accounting check and the first-login privilege bootstrap. On
// success it registers and returns the new session and its token; on
// rejection it returns a *RejectionError.
func (r *Registry) Login(ctx context.Context, creds Credentials, meta ClientMeta, ip string) (*Session, string, error) {
	if !isClientRecent(meta.BuildDate) {
		return nil, "", reject(RejectionOutdatedClient, "client build is too old")
	}

	safeName := normalizeName(creds.Username)

	r.loginMu.Lock()
	defer r.loginMu.Unlock()

	u, err := r.store.FindUserBySafeName(ctx, safeName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", reject(RejectionUnknownUser, "unknown user")
	}
	if err != nil {
		return nil, "", reject(RejectionGenericError, err.Error())
	}

	if !r.verifyPassword(u.PasswordHash, creds.PasswordMD5) {
		return nil, "", reject(RejectionUnknownUser, "invalid credentials")
	}

	if u.Restricted() {
		return nil, "", reject(RejectionRestricted, "account is restricted")
	}

	if existing := r.lookupByNameLocked(safeName); existing != nil {
		existing.Mu.Lock()
		silentFor := time.Since(existing.LastReceived)
		existing.Mu.Unlock()
		if silentFor <= r.idleThreshold {
			return nil, "", reject(RejectionUnknownUser, "already logged in")
		}
		r.removeLocked(existing)
	}

	if err := r.checkMultiAccounting(ctx, &u, meta); err != nil {
		return nil, "", err
	}

	if u.Priv&store.PrivVerified == 0 {
		priv := u.Priv | store.PrivVerified
		if u.ID == 3 {
			priv |= store.PrivStaff
		}
		if err := r.store.SetPriv(ctx, u.ID, priv); err != nil {
			log.Printf("[session] failed to persist first-login privilege grant for %d: %v", u.ID, err)
		} else {
			u.Priv = priv
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", reject(RejectionGenericError, "token generation failed")
	}

	sess := NewSession(u.ID, u.Name, u.SafeName, token, u.Priv)
	sess.BlockNonFriendDM = meta.BlockNonFriendDM
	sess.UTCOffset = meta.UTCOffset
	sess.SilenceEnd = u.SilenceEnd

	friendIDs, err := r.store.Friends(ctx, u.ID)
	if err == nil {
		for _, id := range friendIDs {
			sess.Friends[id] = struct{}{}
		}
	}

	r.registerLocked(sess)
	return sess, token, nil
}

// checkMultiAccounting is the hardware-hash multi-accounting check:
// an unverified account is refused login if any other account sharing its
// hash tuple is not in good standing; an already-verified account merely
// logs the collision and is allowed to proceed.
func (r *Registry) checkMultiAccounting(ctx context.Context, u *store.User, meta ClientMeta) error {
	owners, err := r.store.FindHashOwners(ctx, u.ID, meta.AdaptersMD5, meta.UninstallMD5, meta.DiskSerialMD5)
	if err != nil {
		return reject(RejectionGenericError, err.Error())
	}

	if len(owners) > 0 {
		anyBad := false
		for _, o := range owners {
			if o.Restricted {
				anyBad = true
				break
			}
		}
		if anyBad && u.Priv&store.PrivVerified == 0 {
			_ = r.store.AuditLog(ctx, u.ID, "login_rejected_multiaccount", "hardware hash matched a restricted account")
			return reject(RejectionGenericError, "associated with a restricted account")
		}
		if anyBad {
			log.Printf("[session] user %d (verified) shares hardware hash with a restricted account", u.ID)
		}
	}

	if err := r.store.UpsertClientHash(ctx, u.ID, meta.OsuPathMD5, meta.AdaptersRaw, meta.AdaptersMD5, meta.UninstallMD5, meta.DiskSerialMD5); err != nil {
		log.Printf("[session] failed to record client hash for %d: %v", u.ID, err)
	}
	return nil
}

// isClientRecent parses an 8-digit-prefixed build date (YYYYMMDD...) and
// checks it isn't older than maxClientAgeDays.
func isClientRecent(buildDate string) bool {
	if len(buildDate) < 8 {
		return false
	}
	t, err := time.Parse("20060102", buildDate[:8])
	if err != nil {
		return false
	}
	return time.Since(t) <= maxClientAgeDays*24*time.Hour
}

func (r *Registry) registerLocked(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[s.Token] = s
	r.byID[s.ID] = s
	r.byName[s.SafeName] = s
}

// Register inserts an already-constructed session (used by tests and by
// Login once outside its own loginMu critical section isn't necessary,
// since Login already holds loginMu when it calls registerLocked).
func (r *Registry) Register(s *Session) {
	r.registerLocked(s)
}

func (r *Registry) removeLocked(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, s.Token)
	delete(r.byID, s.ID)
	delete(r.byName, s.SafeName)
}

// Remove evicts a session from every index.
func (r *Registry) Remove(s *Session) {
	r.removeLocked(s)
}

func (r *Registry) lookupByNameLocked(safeName string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[safeName]
}

// ByToken looks up a session by its opaque login token.
func (r *Registry) ByToken(token string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byToken[token]
}

// ByID looks up a session by numeric id.
func (r *Registry) ByID(id int32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByName looks up a session by normalized name.
func (r *Registry) ByName(name string) *Session {
	return r.lookupByNameLocked(normalizeName(name))
}

// All returns a snapshot slice of every currently registered session,
// including the bot.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Broadcast appends data to every session's outbound buffer except those in
// except. The bot is skipped: its buffer is never drained by a gateway
// transaction.
func (r *Registry) Broadcast(data []byte, except map[int32]struct{}) {
	for _, s := range r.All() {
		if s.ID == BotID {
			continue
		}
		if _, skip := except[s.ID]; skip {
			continue
		}
		s.Mu.Lock()
		s.Enqueue(data)
		s.Mu.Unlock()
	}
}

// Sweep evicts any session whose last-received timestamp exceeds the idle
// threshold and who isn't currently in a match. inMatch reports whether a
// session id currently occupies a match
// slot; passed in rather than imported to avoid a session<->match import cycle.
func (r *Registry) Sweep(inMatch func(sessionID int32) bool) []*Session {
	var evicted []*Session
	for _, s := range r.All() {
		if s.ID == BotID {
			continue
		}
		s.Mu.Lock()
		idle := time.Since(s.LastReceived) > r.idleThreshold
		s.Mu.Unlock()
		if idle && !inMatch(s.ID) {
			r.removeLocked(s)
			evicted = append(evicted, s)
		}
	}
	return evicted
}

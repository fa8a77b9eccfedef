package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
	"github.com/sutekina/osu-gulag/internal/store"
)

// errMalformedLogin is returned when the login body doesn't split into the
// three newline-separated lines the client always sends.
var errMalformedLogin = errors.New("gateway: malformed login body")

// parseLoginBody splits a login request body into credentials and client
// metadata. The body is three \n-separated lines: username, password md5,
// and a pipe-separated metadata line whose fourth field is itself a
// colon-separated hash bundle with a trailing separator.
func parseLoginBody(body []byte) (session.Credentials, session.ClientMeta, error) {
	var creds session.Credentials
	var meta session.ClientMeta

	lines := strings.SplitN(string(body), "\n", 4)
	if len(lines) < 3 {
		return creds, meta, errMalformedLogin
	}

	creds.Username = lines[0]
	creds.PasswordMD5 = lines[1]
	if len(creds.PasswordMD5) != 32 {
		return creds, meta, errMalformedLogin
	}

	fields := strings.Split(lines[2], "|")
	if len(fields) < 5 {
		return creds, meta, errMalformedLogin
	}

	meta.BuildDate = strings.TrimPrefix(fields[0], "b")
	utc, err := strconv.Atoi(fields[1])
	if err != nil {
		return creds, meta, errMalformedLogin
	}
	meta.UTCOffset = int32(utc)
	meta.DisplayCity = fields[2] == "1"

	// osu-path:adapters:adapters-md5:unique-id-md5:disk-serial-md5:
	hashes := strings.Split(fields[3], ":")
	if len(hashes) < 5 {
		return creds, meta, errMalformedLogin
	}
	meta.OsuPathMD5 = hashes[0]
	meta.AdaptersRaw = hashes[1]
	meta.AdaptersMD5 = hashes[2]
	meta.UninstallMD5 = hashes[3]
	meta.DiskSerialMD5 = hashes[4]

	meta.BlockNonFriendDM = fields[4] == "1"
	return creds, meta, nil
}

// protocolVersion is the bancho protocol revision this server speaks.
const protocolVersion = 19

// handleLogin runs the full login flow under the registry's login mutex and
// assembles the reply packet sequence the client expects. It returns the
// reply body and the value for the cho-token response header ("no" on
// rejection, matching the client's expectation).
func (g *Gateway) handleLogin(ctx context.Context, body []byte, ip string) ([]byte, string) {
	creds, meta, err := parseLoginBody(body)
	if err != nil {
		return pktUserID(session.RejectionGenericError), "no"
	}

	sess, token, err := g.sessions.Login(ctx, creds, meta, ip)
	if err != nil {
		var rej *session.RejectionError
		if errors.As(err, &rej) {
			out := pktUserID(rej.Code)
			if rej.Code == session.RejectionUnknownUser && rej.Reason == "already logged in" {
				out = append(out, pktNotification("User already logged in.")...)
			}
			return out, "no"
		}
		return pktUserID(session.RejectionGenericError), "no"
	}

	// Pull per-mode stats into the session before anything encodes them.
	for mode := uint8(0); mode < 4; mode++ {
		st, err := g.store.GetStats(ctx, sess.ID, mode)
		if err == nil {
			rank, _ := g.store.CountUnrestrictedWithGreaterPP(ctx, mode, st.PP)
			sess.Stats[mode] = &session.ModeStats{
				RankedScore: st.RankedScore,
				TotalScore:  st.TotalScore,
				PP:          st.PP,
				Accuracy:    st.Accuracy,
				Plays:       st.Plays,
				Playtime:    st.Playtime,
				MaxCombo:    st.MaxCombo,
				Rank:        rank + 1,
			}
		}
	}

	var out []byte
	out = append(out, pktUserID(sess.ID)...)
	out = append(out, pktProtocolVersion(protocolVersion)...)
	out = append(out, pktBanchoPrivileges(banchoPrivBits(sess.Priv))...)
	out = append(out, pktNotification(g.welcomeMessage)...)

	// Channel listing: auto-join channels are joined server-side, and the
	// join must be echoed in this same response or the client re-requests it.
	for _, c := range g.channels.Visible(sess.ID, sess.Priv) {
		if c.AutoJoin {
			if _, err := g.channels.Join(c.RealName, sess.ID, sess.Priv); err == nil {
				sess.Channels[c.RealName] = struct{}{}
				out = append(out, pktChannelJoin(c.Name)...)
			}
		}
		out = append(out, pktChannelInfo(c.Name, c.Topic, c.MemberCount())...)
	}
	out = append(out, pktChannelInfoEnd()...)

	sess.Mu.Lock()
	ownData := append(g.presence.EncodePresence(sess), g.presence.EncodeStats(sess)...)
	friendIDs := make([]int32, 0, len(sess.Friends))
	for id := range sess.Friends {
		friendIDs = append(friendIDs, id)
	}
	remaining := sess.RemainingSilence()
	sess.Mu.Unlock()

	out = append(out, ownData...)

	// Everyone already online learns about us; we learn about them.
	for _, other := range g.sessions.All() {
		if other.ID == sess.ID {
			continue
		}
		if other.ID == session.BotID {
			out = append(out, g.presence.EncodePresence(other)...)
			out = append(out, g.presence.EncodeStats(other)...)
			continue
		}
		other.Mu.Lock()
		out = append(out, g.presence.EncodePresence(other)...)
		out = append(out, g.presence.EncodeStats(other)...)
		other.Enqueue(ownData)
		other.Mu.Unlock()
	}

	out = append(out, pktMainMenuIcon(g.menuIcon)...)
	out = append(out, pktFriendsList(friendIDs)...)
	out = append(out, pktSilenceEnd(remaining)...)

	// Replay mail delivered while the account was offline.
	if entries, err := g.store.PendingMail(ctx, sess.ID); err == nil {
		for _, m := range entries {
			senderName := "unknown"
			if u, err := g.store.FindUserByID(ctx, m.FromID); err == nil {
				senderName = u.Name
			}
			out = append(out, pktMessage(codec.Message{
				Sender:    senderName,
				Content:   m.Msg,
				Recipient: sess.Name,
				SenderID:  m.FromID,
			})...)
		}
	}

	log.Printf("[gateway] %s (id %d) logged in from %s in %s",
		sess.Name, sess.ID, ip, time.Since(sess.LoginTime).Round(time.Millisecond))
	return out, token
}

// banchoPrivBits maps server privileges onto the client-facing i32 sent in
// the ChoPrivileges packet (1 = player, 4 = supporter, 16 = staff).
func banchoPrivBits(priv int64) int32 {
	var out int32 = 4
	if priv&store.PrivNormal != 0 {
		out |= 1
	}
	if priv&store.PrivStaff != 0 {
		out |= 16
	}
	return out
}

// describeRejection is used by tests and operator logs to render a typed
// rejection without leaking anything the client shouldn't see.
func describeRejection(err error) string {
	var rej *session.RejectionError
	if errors.As(err, &rej) {
		return fmt.Sprintf("code %d: %s", rej.Code, rej.Reason)
	}
	return err.Error()
}

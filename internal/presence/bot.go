package presence

import (
	"math/rand"
	"sync"

	"github.com/sutekina/osu-gulag/internal/codec"
	"github.com/sutekina/osu-gulag/internal/session"
)

// botStatuses is the rotation of (action, info-text) pairs the bot's cached
// stats packet picks from each time the cache is rebuilt.
var botStatuses = [...]struct {
	action uint8
	info   string
}{
	{6, "the lobby"},
	{6, "over the leaderboards"},
	{1, "with packets"},
	{2, "the waiting game"},
}

// botCache holds the pre-encoded bot presence and stats packets. The bot is
// on every player's friends list, so these are requested very frequently;
// invalidate() is called periodically so the random status line varies.
type botCache struct {
	bot *session.Session

	mu            sync.Mutex
	statsBytes    []byte
	presenceBytes []byte
}

func newBotCache(bot *session.Session) *botCache {
	return &botCache{bot: bot}
}

func (c *botCache) stats() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statsBytes == nil {
		st := botStatuses[rand.Intn(len(botStatuses))]
		w := codec.NewWriter()
		w.WriteI32(c.bot.ID)
		w.WriteU8(st.action)
		w.WriteString(st.info)
		w.WriteString("")
		w.WriteI32(0)
		w.WriteU8(0)
		w.WriteI32(0)
		w.WriteI64(0)
		w.WriteF32(0)
		w.WriteI32(0)
		w.WriteI64(0)
		w.WriteI32(0)
		w.WriteI16(0)
		c.statsBytes = codec.EncodePacket(codec.ChoUserStats, w.Bytes())
	}
	return c.statsBytes
}

func (c *botCache) presence() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.presenceBytes == nil {
		w := codec.NewWriter()
		w.WriteI32(c.bot.ID)
		w.WriteString(c.bot.Name)
		w.WriteU8(24) // UTC+0
		w.WriteU8(245)
		w.WriteU8(31)
		// coordinates far off the map so the bot never shows on the globe
		w.WriteF32(1234.0)
		w.WriteF32(4321.0)
		w.WriteI32(0)
		c.presenceBytes = codec.EncodePacket(codec.ChoUserPresence, w.Bytes())
	}
	return c.presenceBytes
}

func (c *botCache) invalidate() {
	c.mu.Lock()
	c.statsBytes = nil
	c.mu.Unlock()
}

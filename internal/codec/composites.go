package codec

// Message is the "message" composite: public/private chat delivery.
type Message struct {
	Sender    string
	Content   string
	Recipient string
	SenderID  int32
}

func (r *Reader) Message() (Message, error) {
	var m Message
	var err error
	if m.Sender, err = r.String(); err != nil {
		return m, err
	}
	if m.Content, err = r.String(); err != nil {
		return m, err
	}
	if m.Recipient, err = r.String(); err != nil {
		return m, err
	}
	if m.SenderID, err = r.I32(); err != nil {
		return m, err
	}
	return m, nil
}

func (w *Writer) WriteMessage(m Message) {
	w.WriteString(m.Sender)
	w.WriteString(m.Content)
	w.WriteString(m.Recipient)
	w.WriteI32(m.SenderID)
}

// Channel is the "channel" composite: channel listing entries.
type Channel struct {
	Name    string
	Topic   string
	Members uint16
}

func (w *Writer) WriteChannel(c Channel) {
	w.WriteString(c.Name)
	w.WriteString(c.Topic)
	w.WriteU16(c.Members)
}

// SlotStatus is a bitset -- membership queries like "has a player" are a mask test.
type SlotStatus uint8

const (
	SlotOpen      SlotStatus = 1 << 0
	SlotLocked    SlotStatus = 1 << 1
	SlotNotReady  SlotStatus = 1 << 2
	SlotReady     SlotStatus = 1 << 3
	SlotNoMap     SlotStatus = 1 << 4
	SlotPlaying   SlotStatus = 1 << 5
	SlotComplete  SlotStatus = 1 << 6
	SlotQuit      SlotStatus = 1 << 7

	SlotHasPlayer = SlotNotReady | SlotReady | SlotNoMap | SlotPlaying | SlotComplete | SlotQuit
)

type MatchTeam uint8

const (
	TeamNeutral MatchTeam = 0
	TeamRed     MatchTeam = 1
	TeamBlue    MatchTeam = 2
)

type MatchTeamType uint8

const (
	TeamTypeHeadToHead MatchTeamType = 0
	TeamTypeTagCoop    MatchTeamType = 1
	TeamTypeTeamVS     MatchTeamType = 2
	TeamTypeTagTeamVS  MatchTeamType = 3
)

type MatchWinCondition uint8

const (
	WinScore        MatchWinCondition = 0
	WinAccuracy     MatchWinCondition = 1
	WinCombo        MatchWinCondition = 2
	WinScoreV2      MatchWinCondition = 3
)

// MatchSlot is one of 16 fixed positions in a Match composite.
type MatchSlot struct {
	Status SlotStatus
	Team   MatchTeam
	UserID int32 // valid only if Status&SlotHasPlayer != 0
	Mods   int32 // per-slot mods, meaningful only in freemods matches
}

const NumSlots = 16

// Match is the "match" composite.
type Match struct {
	ID           uint16
	InProgress   bool
	Mods         int32
	Name         string
	Password     string
	MapName      string
	MapID        int32
	MapMD5       string
	Slots        [NumSlots]MatchSlot
	HostID       int32
	Mode         uint8
	WinCondition MatchWinCondition
	TeamType     MatchTeamType
	Freemods     bool
	Seed         int32
}

// WriteMatch writes m. sendPassword controls whether a set password is sent
// in the clear or as a present-but-empty string, matching how the client
// only cares whether a password exists, not what it is, for lobby listings.
func (w *Writer) WriteMatch(m Match, sendPassword bool) {
	w.WriteU16(m.ID)
	w.WriteU8(boolByte(m.InProgress))
	w.WriteU8(0) // match type, always 0
	w.WriteI32(m.Mods)
	w.WriteString(m.Name)

	switch {
	case m.Password == "":
		w.WriteU8(stringEmpty)
	case sendPassword:
		w.WriteString(m.Password)
	default:
		w.WriteU8(stringPresent)
		w.WriteU8(0) // present-but-zero-length sentinel password
	}

	w.WriteString(m.MapName)
	w.WriteI32(m.MapID)
	w.WriteString(m.MapMD5)

	for _, s := range m.Slots {
		w.WriteU8(uint8(s.Status))
	}
	for _, s := range m.Slots {
		w.WriteU8(uint8(s.Team))
	}
	for _, s := range m.Slots {
		if s.Status&SlotHasPlayer != 0 {
			w.WriteU32(uint32(s.UserID))
		}
	}

	w.WriteU32(uint32(m.HostID))
	w.WriteU8(m.Mode)
	w.WriteU8(uint8(m.WinCondition))
	w.WriteU8(uint8(m.TeamType))
	w.WriteU8(boolByte(m.Freemods))

	if m.Freemods {
		for _, s := range m.Slots {
			w.WriteI32(s.Mods)
		}
	}

	w.WriteI32(m.Seed)
}

// ReadMatch parses a client-submitted match composite (OSU_CREATE_MATCH /
// OSU_MATCH_CHANGE_SETTINGS). The match id and in-progress flag are not
// meaningful on the client->server direction and are discarded; per-slot
// occupant ids are kept so every other field round trips through WriteMatch.
func (r *Reader) ReadMatch() (Match, error) {
	var m Match
	if _, err := r.U16(); err != nil { // match id, unused
		return m, err
	}
	if _, err := r.U8(); err != nil { // in-progress, unused
		return m, err
	}
	if _, err := r.U8(); err != nil { // match type, unused
		return m, err
	}
	mods, err := r.I32()
	if err != nil {
		return m, err
	}
	m.Mods = mods

	if m.Name, err = r.String(); err != nil {
		return m, err
	}
	if m.Password, err = r.String(); err != nil {
		return m, err
	}
	if m.MapName, err = r.String(); err != nil {
		return m, err
	}
	if m.MapID, err = r.I32(); err != nil {
		return m, err
	}
	if m.MapMD5, err = r.String(); err != nil {
		return m, err
	}

	for i := range m.Slots {
		v, err := r.U8()
		if err != nil {
			return m, err
		}
		m.Slots[i].Status = SlotStatus(v)
	}
	for i := range m.Slots {
		v, err := r.U8()
		if err != nil {
			return m, err
		}
		m.Slots[i].Team = MatchTeam(v)
	}
	for i := range m.Slots {
		if m.Slots[i].Status&SlotHasPlayer != 0 {
			v, err := r.I32()
			if err != nil {
				return m, err
			}
			m.Slots[i].UserID = v
		}
	}

	hostID, err := r.I32()
	if err != nil {
		return m, err
	}
	m.HostID = hostID

	mode, err := r.U8()
	if err != nil {
		return m, err
	}
	m.Mode = mode

	wc, err := r.U8()
	if err != nil {
		return m, err
	}
	m.WinCondition = MatchWinCondition(wc)

	tt, err := r.U8()
	if err != nil {
		return m, err
	}
	m.TeamType = MatchTeamType(tt)

	fm, err := r.U8()
	if err != nil {
		return m, err
	}
	m.Freemods = fm == 1

	if m.Freemods {
		for i := range m.Slots {
			v, err := r.I32()
			if err != nil {
				return m, err
			}
			m.Slots[i].Mods = v
		}
	}

	seed, err := r.I32()
	if err != nil {
		return m, err
	}
	m.Seed = seed

	return m, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ScoreFrame is the 29-byte packed spectator scoreframe, optionally followed
// by two score-v2 floats.
type ScoreFrame struct {
	Time         int32
	ID           uint8
	Num300       uint16
	Num100       uint16
	Num50        uint16
	NumGeki      uint16
	NumKatu      uint16
	NumMiss      uint16
	TotalScore   int32
	CurrentCombo uint16
	MaxCombo     uint16
	Perfect      bool
	CurrentHP    uint8
	TagByte      uint8
	ScoreV2      bool
	ComboPortion float32
	BonusPortion float32
}

func (r *Reader) ScoreFrame() (ScoreFrame, error) {
	var sf ScoreFrame
	var err error
	if sf.Time, err = r.I32(); err != nil {
		return sf, err
	}
	var idv uint8
	if idv, err = r.U8(); err != nil {
		return sf, err
	}
	sf.ID = idv
	for _, dst := range []*uint16{&sf.Num300, &sf.Num100, &sf.Num50, &sf.NumGeki, &sf.NumKatu, &sf.NumMiss} {
		v, err := r.U16()
		if err != nil {
			return sf, err
		}
		*dst = v
	}
	if sf.TotalScore, err = r.I32(); err != nil {
		return sf, err
	}
	if sf.CurrentCombo, err = r.U16(); err != nil {
		return sf, err
	}
	if sf.MaxCombo, err = r.U16(); err != nil {
		return sf, err
	}
	perfect, err := r.U8()
	if err != nil {
		return sf, err
	}
	sf.Perfect = perfect != 0
	if sf.CurrentHP, err = r.U8(); err != nil {
		return sf, err
	}
	if sf.TagByte, err = r.U8(); err != nil {
		return sf, err
	}
	sv2, err := r.U8()
	if err != nil {
		return sf, err
	}
	sf.ScoreV2 = sv2 != 0

	if sf.ScoreV2 {
		if sf.ComboPortion, err = r.F32(); err != nil {
			return sf, err
		}
		if sf.BonusPortion, err = r.F32(); err != nil {
			return sf, err
		}
	}
	return sf, nil
}

func (w *Writer) WriteScoreFrame(sf ScoreFrame) {
	w.WriteI32(sf.Time)
	w.WriteU8(sf.ID)
	w.WriteU16(sf.Num300)
	w.WriteU16(sf.Num100)
	w.WriteU16(sf.Num50)
	w.WriteU16(sf.NumGeki)
	w.WriteU16(sf.NumKatu)
	w.WriteU16(sf.NumMiss)
	w.WriteI32(sf.TotalScore)
	w.WriteU16(sf.CurrentCombo)
	w.WriteU16(sf.MaxCombo)
	w.WriteU8(boolByte(sf.Perfect))
	w.WriteU8(sf.CurrentHP)
	w.WriteU8(sf.TagByte)
	w.WriteU8(boolByte(sf.ScoreV2))
	if sf.ScoreV2 {
		w.WriteF32(sf.ComboPortion)
		w.WriteF32(sf.BonusPortion)
	}
}

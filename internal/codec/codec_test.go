package codec

import (
	"bytes"
	"testing"
)

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello world", "utf-8: 日本語", string(make([]byte, 300))}
	for _, s := range cases {
		w := NewWriter()
		w.WriteString(s)
		r := NewReader(w.Bytes())
		got, err := r.String()
		if err != nil {
			t.Fatalf("String() error for %q: %v", s, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %q want %q", got, s)
		}
	}
}

func TestEmptyStringEncodesAsSingleZeroByte(t *testing.T) {
	w := NewWriter()
	w.WriteString("")
	if !bytes.Equal(w.Bytes(), []byte{0x00}) {
		t.Fatalf("empty string encoding = % x, want 00", w.Bytes())
	}
}

func TestULEB128RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40} {
		w := NewWriter()
		w.WriteULEB128(v)
		r := NewReader(w.Bytes())
		got, err := r.ULEB128()
		if err != nil {
			t.Fatalf("ULEB128() error: %v", err)
		}
		if got != v {
			t.Fatalf("got %d want %d", got, v)
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteI8(-5)
	w.WriteU8(250)
	w.WriteI16(-1000)
	w.WriteU16(60000)
	w.WriteI32(-100000)
	w.WriteU32(4000000000)
	w.WriteI64(-123456789012)
	w.WriteF32(3.5)
	w.WriteF64(2.71828)

	r := NewReader(w.Bytes())
	if v, _ := r.I8(); v != -5 {
		t.Fatalf("i8 = %d", v)
	}
	if v, _ := r.U8(); v != 250 {
		t.Fatalf("u8 = %d", v)
	}
	if v, _ := r.I16(); v != -1000 {
		t.Fatalf("i16 = %d", v)
	}
	if v, _ := r.U16(); v != 60000 {
		t.Fatalf("u16 = %d", v)
	}
	if v, _ := r.I32(); v != -100000 {
		t.Fatalf("i32 = %d", v)
	}
	if v, _ := r.U32(); v != 4000000000 {
		t.Fatalf("u32 = %d", v)
	}
	if v, _ := r.I64(); v != -123456789012 {
		t.Fatalf("i64 = %d", v)
	}
	if v, _ := r.F32(); v != 3.5 {
		t.Fatalf("f32 = %v", v)
	}
	if v, _ := r.F64(); v != 2.71828 {
		t.Fatalf("f64 = %v", v)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{Sender: "alice", Content: "hello #osu", Recipient: "#osu", SenderID: 1000}
	w := NewWriter()
	w.WriteMessage(m)
	r := NewReader(w.Bytes())
	got, err := r.Message()
	if err != nil {
		t.Fatalf("Message() error: %v", err)
	}
	if got != m {
		t.Fatalf("got %+v want %+v", got, m)
	}
}

func TestMatchRoundTripThroughClientFields(t *testing.T) {
	var m Match
	m.Mods = 0
	m.Name = "my room"
	m.Password = "hunter2"
	m.MapName = "Artist - Title [Diff]"
	m.MapID = 12345
	m.MapMD5 = "0123456789abcdef0123456789abcdef"
	m.Slots[0] = MatchSlot{Status: SlotReady, Team: TeamNeutral, UserID: 1001}
	m.Slots[1] = MatchSlot{Status: SlotNotReady, Team: TeamNeutral, UserID: 1002}
	for i := 2; i < NumSlots; i++ {
		m.Slots[i] = MatchSlot{Status: SlotOpen}
	}
	m.HostID = 1001
	m.Mode = 0
	m.WinCondition = WinScore
	m.TeamType = TeamTypeHeadToHead
	m.Freemods = false
	m.Seed = 42

	w := NewWriter()
	w.WriteMatch(m, true)
	r := NewReader(w.Bytes())
	got, err := r.ReadMatch()
	if err != nil {
		t.Fatalf("ReadMatch() error: %v", err)
	}

	// ID and InProgress are write-only fields from the server's perspective
	// and are not meaningful coming back from the client; every other field
	// must round trip exactly.
	got.ID = m.ID
	got.InProgress = m.InProgress

	if got != m {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, m)
	}
}

func TestMatchFreemodsRoundTrip(t *testing.T) {
	var m Match
	m.Name = "freemod room"
	m.MapMD5 = "deadbeef"
	m.Slots[0] = MatchSlot{Status: SlotReady, Team: TeamRed, UserID: 5, Mods: 64}
	m.Slots[1] = MatchSlot{Status: SlotReady, Team: TeamBlue, UserID: 6, Mods: 16}
	for i := 2; i < NumSlots; i++ {
		m.Slots[i] = MatchSlot{Status: SlotOpen}
	}
	m.HostID = 5
	m.TeamType = TeamTypeTeamVS
	m.Freemods = true
	m.Seed = 7

	w := NewWriter()
	w.WriteMatch(m, true)
	r := NewReader(w.Bytes())
	got, err := r.ReadMatch()
	if err != nil {
		t.Fatalf("ReadMatch() error: %v", err)
	}
	got.ID = m.ID
	got.InProgress = m.InProgress
	if got != m {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, m)
	}
}

func TestScoreFrameRoundTrip(t *testing.T) {
	sf := ScoreFrame{
		Time: 15000, ID: 1, Num300: 100, Num100: 5, Num50: 1,
		NumGeki: 20, NumKatu: 2, NumMiss: 0, TotalScore: 950000,
		CurrentCombo: 300, MaxCombo: 500, Perfect: true, CurrentHP: 100,
		TagByte: 0, ScoreV2: true, ComboPortion: 123.5, BonusPortion: 45.0,
	}
	w := NewWriter()
	w.WriteScoreFrame(sf)
	r := NewReader(w.Bytes())
	got, err := r.ScoreFrame()
	if err != nil {
		t.Fatalf("ScoreFrame() error: %v", err)
	}
	if got != sf {
		t.Fatalf("got %+v want %+v", got, sf)
	}
}

func TestScoreFrameWithoutScoreV2OmitsPortions(t *testing.T) {
	sf := ScoreFrame{Time: 1, Num300: 1, ScoreV2: false}
	w := NewWriter()
	w.WriteScoreFrame(sf)
	if len(w.Bytes()) != 29 {
		t.Fatalf("non-scorev2 scoreframe should be exactly 29 bytes, got %d", len(w.Bytes()))
	}
}

func TestDecodeAllStopsOnUnknownOpcodeBySkippingPayload(t *testing.T) {
	w1 := EncodePacket(9999, []byte("ignored"))
	w2 := EncodePacket(OsuPing, nil)
	packets, err := DecodeAll(append(w1, w2...))
	if err != nil {
		t.Fatalf("DecodeAll() error: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].ID != 9999 || packets[1].ID != OsuPing {
		t.Fatalf("unexpected packet ids: %+v", packets)
	}
}

func TestDecodeAllTerminatesCleanlyOnTrailingBytes(t *testing.T) {
	body := append(EncodePacket(OsuPing, nil), 0x01, 0x02, 0x03)
	packets, err := DecodeAll(body)
	if err != nil {
		t.Fatalf("DecodeAll() error: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
}

func TestDecodeAllErrorsOnDeclaredLengthLongerThanBody(t *testing.T) {
	w := NewWriter()
	w.WriteU16(OsuPing)
	w.WriteU8(0)
	w.WriteU32(100) // declared length far exceeds actual remaining bytes
	_, err := DecodeAll(w.Bytes())
	if err != ErrTruncated {
		t.Fatalf("got err %v, want ErrTruncated", err)
	}
}

func TestEncodePacketFraming(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	b := EncodePacket(OsuPing, payload)
	if len(b) != 7+len(payload) {
		t.Fatalf("framed length = %d, want %d", len(b), 7+len(payload))
	}
	packets, err := DecodeAll(b)
	if err != nil {
		t.Fatalf("DecodeAll() error: %v", err)
	}
	if len(packets) != 1 || packets[0].ID != OsuPing || !bytes.Equal(packets[0].Payload, payload) {
		t.Fatalf("round trip mismatch: %+v", packets)
	}
}

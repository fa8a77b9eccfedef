package codec

// Packet is one decoded frame: an opcode and its raw, not-yet-interpreted payload.
type Packet struct {
	ID      uint16
	Payload []byte
}

// minHeaderLen is the packet header size: u16 id + 1 pad byte + u32 length.
const minHeaderLen = 7

// DecodeAll splits a request body into its constituent packets. Unknown
// opcodes are not filtered here -- the caller skips handling them, but the
// decoder still needs to advance exactly the declared payload length so
// later packets in the batch stay aligned. Fewer than minHeaderLen trailing
// bytes end iteration cleanly rather than erroring, matching the client's
// habit of occasionally padding a request.
func DecodeAll(body []byte) ([]Packet, error) {
	var packets []Packet
	r := NewReader(body)
	for r.Remaining() >= minHeaderLen {
		id, err := r.U16()
		if err != nil {
			return packets, err
		}
		if _, err := r.U8(); err != nil { // padding byte
			return packets, err
		}
		length, err := r.U32()
		if err != nil {
			return packets, err
		}
		payload, err := r.take(int(length))
		if err != nil {
			// Declared length longer than what remains: protocol error, the
			// gateway must close the connection rather than silently drop it.
			return packets, ErrTruncated
		}
		packets = append(packets, Packet{ID: id, Payload: payload})
	}
	return packets, nil
}

// EncodePacket frames id + payload into a single wire packet.
func EncodePacket(id uint16, payload []byte) []byte {
	w := NewWriter()
	w.WriteU16(id)
	w.WriteU8(0) // padding
	w.WriteU32(uint32(len(payload)))
	w.WriteRaw(payload)
	return w.Bytes()
}

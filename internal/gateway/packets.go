package gateway

import (
	"github.com/sutekina/osu-gulag/internal/codec"
)

// Small server-to-client packet encoders. Stateless ones the whole gateway
// shares; anything involving a Session or Match lives with its handler.

func pktUserID(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoUserID, w.Bytes())
}

func pktNotification(msg string) []byte {
	w := codec.NewWriter()
	w.WriteString(msg)
	return codec.EncodePacket(codec.ChoNotification, w.Bytes())
}

func pktProtocolVersion(v int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(v)
	return codec.EncodePacket(codec.ChoProtocolVersion, w.Bytes())
}

func pktBanchoPrivileges(priv int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(priv)
	return codec.EncodePacket(codec.ChoPrivileges, w.Bytes())
}

func pktChannelJoin(name string) []byte {
	w := codec.NewWriter()
	w.WriteString(name)
	return codec.EncodePacket(codec.ChoChannelJoinSuccess, w.Bytes())
}

func pktChannelKick(name string) []byte {
	w := codec.NewWriter()
	w.WriteString(name)
	return codec.EncodePacket(codec.ChoChannelKick, w.Bytes())
}

func pktChannelInfo(name, topic string, members int) []byte {
	w := codec.NewWriter()
	w.WriteChannel(codec.Channel{Name: name, Topic: topic, Members: uint16(members)})
	return codec.EncodePacket(codec.ChoChannelInfo, w.Bytes())
}

func pktChannelInfoEnd() []byte {
	return codec.EncodePacket(codec.ChoChannelInfoEnd, nil)
}

func pktFriendsList(ids []int32) []byte {
	w := codec.NewWriter()
	w.WriteI32List16(ids)
	return codec.EncodePacket(codec.ChoFriendsList, w.Bytes())
}

func pktSilenceEnd(delta int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(delta)
	return codec.EncodePacket(codec.ChoSilenceEnd, w.Bytes())
}

func pktRestart(ms int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(ms)
	return codec.EncodePacket(codec.ChoRestart, w.Bytes())
}

func pktMainMenuIcon(icon string) []byte {
	w := codec.NewWriter()
	w.WriteString(icon)
	return codec.EncodePacket(codec.ChoMainMenuIcon, w.Bytes())
}

func pktMessage(m codec.Message) []byte {
	w := codec.NewWriter()
	w.WriteMessage(m)
	return codec.EncodePacket(codec.ChoSendMessage, w.Bytes())
}

func pktUserDMBlocked(target string) []byte {
	w := codec.NewWriter()
	w.WriteMessage(codec.Message{Recipient: target})
	return codec.EncodePacket(codec.ChoUserDMBlocked, w.Bytes())
}

func pktTargetSilenced(target string) []byte {
	w := codec.NewWriter()
	w.WriteMessage(codec.Message{Recipient: target})
	return codec.EncodePacket(codec.ChoTargetIsSilenced, w.Bytes())
}

func pktSpectatorJoined(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoSpectatorJoined, w.Bytes())
}

func pktSpectatorLeft(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoSpectatorLeft, w.Bytes())
}

func pktFellowSpectatorJoined(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoFellowSpectatorJoined, w.Bytes())
}

func pktFellowSpectatorLeft(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoFellowSpectatorLeft, w.Bytes())
}

func pktSpectatorCantSpectate(id int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(id)
	return codec.EncodePacket(codec.ChoSpectatorCantSpectate, w.Bytes())
}

func pktMatchJoinFail() []byte {
	return codec.EncodePacket(codec.ChoMatchJoinFail, nil)
}

func pktMatchJoinSuccess(m codec.Match) []byte {
	w := codec.NewWriter()
	w.WriteMatch(m, true)
	return codec.EncodePacket(codec.ChoMatchJoinSuccess, w.Bytes())
}

func pktMatchStart(m codec.Match) []byte {
	w := codec.NewWriter()
	w.WriteMatch(m, true)
	return codec.EncodePacket(codec.ChoMatchStart, w.Bytes())
}

func pktMatchTransferHost() []byte {
	return codec.EncodePacket(codec.ChoMatchTransferHost, nil)
}

func pktMatchAllPlayersLoaded() []byte {
	return codec.EncodePacket(codec.ChoMatchAllPlayersLoaded, nil)
}

func pktMatchComplete() []byte {
	return codec.EncodePacket(codec.ChoMatchComplete, nil)
}

func pktMatchSkip() []byte {
	return codec.EncodePacket(codec.ChoMatchSkip, nil)
}

func pktMatchPlayerFailed(slotIdx int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(slotIdx)
	return codec.EncodePacket(codec.ChoMatchPlayerFailed, w.Bytes())
}

func pktMatchPlayerSkipped(userID int32) []byte {
	w := codec.NewWriter()
	w.WriteI32(userID)
	return codec.EncodePacket(codec.ChoMatchPlayerSkipped, w.Bytes())
}

func pktMatchChangePassword(pw string) []byte {
	w := codec.NewWriter()
	w.WriteString(pw)
	return codec.EncodePacket(codec.ChoMatchChangePassword, w.Bytes())
}

func pktMatchInvite(sender string, senderID int32, target, matchName string) []byte {
	w := codec.NewWriter()
	w.WriteMessage(codec.Message{
		Sender:    sender,
		Content:   "Come join my game: " + matchName + ".",
		Recipient: target,
		SenderID:  senderID,
	})
	return codec.EncodePacket(codec.ChoMatchInvite, w.Bytes())
}

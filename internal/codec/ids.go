package codec

// Packet identifiers for the bancho wire protocol. Names keep the
// client-to-server / server-to-client prefixing convention of the original
// protocol so handler tables read the same way the client's own
// documentation does.
const (
	OsuChangeAction        uint16 = 0
	OsuSendPublicMessage   uint16 = 1
	OsuLogout              uint16 = 2
	OsuRequestStatusUpdate uint16 = 3
	OsuPing                uint16 = 4

	ChoUserID                    uint16 = 5
	ChoSendMessage               uint16 = 7
	ChoPong                      uint16 = 8
	ChoUserStats                 uint16 = 11
	ChoUserLogout                uint16 = 12
	ChoSpectatorJoined           uint16 = 13
	ChoSpectatorLeft             uint16 = 14
	ChoSpectateFrames            uint16 = 15
	OsuStartSpectating           uint16 = 16
	OsuStopSpectating            uint16 = 17
	OsuSpectateFrames            uint16 = 18
	ChoVersionUpdate             uint16 = 19
	OsuErrorReport               uint16 = 20
	OsuCantSpectate              uint16 = 21
	ChoSpectatorCantSpectate     uint16 = 22
	ChoGetAttention              uint16 = 23
	ChoNotification              uint16 = 24
	OsuSendPrivateMessage        uint16 = 25
	ChoUpdateMatch               uint16 = 26
	ChoNewMatch                  uint16 = 27
	ChoDisposeMatch              uint16 = 28
	OsuPartLobby                 uint16 = 29
	OsuJoinLobby                 uint16 = 30
	OsuCreateMatch               uint16 = 31
	OsuJoinMatch                 uint16 = 32
	OsuPartMatch                 uint16 = 33
	ChoToggleBlockNonFriendDMs   uint16 = 34
	ChoMatchJoinSuccess          uint16 = 36
	ChoMatchJoinFail             uint16 = 37
	OsuMatchChangeSlot           uint16 = 38
	OsuMatchReady                uint16 = 39
	OsuMatchLock                 uint16 = 40
	OsuMatchChangeSettings       uint16 = 41
	ChoFellowSpectatorJoined     uint16 = 42
	ChoFellowSpectatorLeft       uint16 = 43
	OsuMatchStart                uint16 = 44
	ChoAllPlayersLoaded          uint16 = 45
	ChoMatchStart                uint16 = 46
	OsuMatchScoreUpdate          uint16 = 47
	ChoMatchScoreUpdate          uint16 = 48
	OsuMatchComplete             uint16 = 49
	ChoMatchTransferHost         uint16 = 50
	OsuMatchChangeMods           uint16 = 51
	OsuMatchLoadComplete         uint16 = 52
	ChoMatchAllPlayersLoaded     uint16 = 53
	OsuMatchNoBeatmap            uint16 = 54
	OsuMatchNotReady             uint16 = 55
	OsuMatchFailed               uint16 = 56
	ChoMatchPlayerFailed         uint16 = 57
	ChoMatchComplete             uint16 = 58
	OsuMatchHasBeatmap           uint16 = 59
	OsuMatchSkipRequest          uint16 = 60
	ChoMatchSkip                 uint16 = 61
	OsuChannelJoin               uint16 = 63
	ChoChannelJoinSuccess        uint16 = 64
	ChoChannelInfo               uint16 = 65
	ChoChannelKick               uint16 = 66
	ChoChannelAutoJoin           uint16 = 67
	OsuBeatmapInfoRequest        uint16 = 68
	ChoBeatmapInfoReply          uint16 = 69
	OsuMatchTransferHost         uint16 = 70
	ChoPrivileges                uint16 = 71
	ChoFriendsList                uint16 = 72
	OsuFriendAdd                 uint16 = 73
	OsuFriendRemove              uint16 = 74
	ChoProtocolVersion           uint16 = 75
	ChoMainMenuIcon              uint16 = 76
	OsuMatchChangeTeam           uint16 = 77
	OsuChannelPart               uint16 = 78
	OsuReceiveUpdates            uint16 = 79
	ChoMatchPlayerSkipped        uint16 = 81
	OsuSetAwayMessage            uint16 = 82
	ChoUserPresence              uint16 = 83
	OsuUserStatsRequest          uint16 = 85
	ChoRestart                   uint16 = 86
	OsuMatchInvite               uint16 = 87
	ChoMatchInvite               uint16 = 88
	ChoChannelInfoEnd            uint16 = 89
	OsuMatchChangePassword       uint16 = 90
	ChoMatchChangePassword       uint16 = 91
	ChoSilenceEnd                uint16 = 92
	ChoUserSilenced              uint16 = 94
	ChoUserPresenceSingle        uint16 = 95
	ChoUserPresenceBundle        uint16 = 96
	OsuUserPresenceRequest       uint16 = 97
	OsuUserPresenceRequestAll    uint16 = 98
	OsuToggleBlockNonFriendDMs   uint16 = 99
	ChoUserDMBlocked             uint16 = 100
	ChoTargetIsSilenced          uint16 = 101
	ChoVersionUpdateForced       uint16 = 102
	ChoSwitchServer              uint16 = 103
	ChoAccountRestricted         uint16 = 104
	ChoMatchAbort                uint16 = 106
	ChoSwitchTournamentServer    uint16 = 107
)

package codec

// Mod bitflags, in the client's own bit assignment order. Only the ones
// referenced by match freemod logic and the score pipeline's ranking-metric
// selection are named; the rest pass through as opaque bits.
const (
	ModNoFail    int32 = 1 << 0
	ModEasy      int32 = 1 << 1
	ModTouchDevice int32 = 1 << 2
	ModHidden    int32 = 1 << 3
	ModHardRock  int32 = 1 << 4
	ModSuddenDeath int32 = 1 << 5
	ModDoubleTime int32 = 1 << 6
	ModRelax     int32 = 1 << 7
	ModHalfTime  int32 = 1 << 8
	ModNightcore int32 = 1 << 9
	ModFlashlight int32 = 1 << 10
	ModAutoplay  int32 = 1 << 11
	ModSpunOut   int32 = 1 << 12
	ModAutopilot int32 = 1 << 13
	ModPerfect   int32 = 1 << 14
	ModKey4      int32 = 1 << 15
	ModKey5      int32 = 1 << 16
	ModKey6      int32 = 1 << 17
	ModKey7      int32 = 1 << 18
	ModKey8      int32 = 1 << 19
	ModFadeIn    int32 = 1 << 20
	ModRandom    int32 = 1 << 21
	ModCinema    int32 = 1 << 22
	ModTarget    int32 = 1 << 23
	ModKey9      int32 = 1 << 24
	ModKeyCoop   int32 = 1 << 25
	ModKey1      int32 = 1 << 26
	ModKey3      int32 = 1 << 27
	ModKey2      int32 = 1 << 28
	ModScoreV2   int32 = 1 << 29
	ModMirror    int32 = 1 << 30
)

// SpeedMods is every mod that changes playback speed. Spec §4.4/§4.5's
// freemods rule keeps these room-wide regardless of the freemods flag.
const SpeedMods = ModDoubleTime | ModHalfTime | ModNightcore

// NonSpeedMods is the complement the freemods overlay moves between the
// room and individual slots.
const NonSpeedMods = ^SpeedMods

// RelaxOrAutopilot reports whether mods select one of the autoplay-style
// assist mods, which rank by performance-points rather than raw score and
// are checked against their own pp cap.
func RelaxOrAutopilot(mods int32) bool {
	return mods&(ModRelax|ModAutopilot|ModAutoplay) != 0
}

// Package score implements the score-submission pipeline: decrypt, parse,
// deduplicate, classify, persist, re-aggregate and respond to a submitted
// play, per the submission flow of the gateway's sibling web endpoints.
package score

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Submission is one parsed score payload, post-decryption.
type Submission struct {
	MapMD5         string
	PlayerName     string
	OnlineChecksum string

	N300, N100, N50    int32
	NGeki, NKatu, NMiss int32
	Score              int64
	MaxCombo           int32
	Perfect            bool
	Grade              string
	Mods               int32
	Passed             bool
	Mode               uint8

	// PP and Accuracy are derived after parsing: accuracy from the
	// judgement counts, pp by the external calculator.
	PP       float64
	Accuracy float64

	// TimeElapsedMS comes from the multipart form's st/ft field, not the
	// encrypted payload.
	TimeElapsedMS int64
	ClientFlags   int32
}

// parseSubmission splits the decrypted payload into its newline-separated
// fields. Field order matches what the client serializes before encrypting.
func parseSubmission(plaintext []byte) (*Submission, error) {
	lines := strings.Split(strings.TrimRight(string(plaintext), "\n"), "\n")
	if len(lines) < 16 {
		return nil, ErrBadPayload
	}

	var sub Submission
	sub.MapMD5 = lines[0]
	sub.PlayerName = strings.TrimRight(lines[1], " ") // supporter clients append a space
	sub.OnlineChecksum = lines[2]

	ints := make([]int64, 0, 8)
	for _, f := range lines[3:10] {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, ErrBadPayload
		}
		ints = append(ints, v)
	}
	sub.N300 = int32(ints[0])
	sub.N100 = int32(ints[1])
	sub.N50 = int32(ints[2])
	sub.NGeki = int32(ints[3])
	sub.NKatu = int32(ints[4])
	sub.NMiss = int32(ints[5])
	sub.Score = ints[6]

	combo, err := strconv.ParseInt(lines[10], 10, 32)
	if err != nil {
		return nil, ErrBadPayload
	}
	sub.MaxCombo = int32(combo)
	sub.Perfect = lines[11] == "True" || lines[11] == "1"
	sub.Grade = lines[12]

	mods, err := strconv.ParseInt(lines[13], 10, 32)
	if err != nil {
		return nil, ErrBadPayload
	}
	sub.Mods = int32(mods)
	sub.Passed = lines[14] == "True" || lines[14] == "1"

	mode, err := strconv.ParseUint(lines[15], 10, 8)
	if err != nil || mode > 3 {
		return nil, ErrBadPayload
	}
	sub.Mode = uint8(mode)

	if len(sub.MapMD5) != 32 || sub.PlayerName == "" {
		return nil, ErrBadPayload
	}

	sub.Accuracy = computeAccuracy(&sub)
	return &sub, nil
}

// computeAccuracy derives the accuracy percentage from judgement counts
// using the standard-mode weighting; other modes reuse the same weighting
// for aggregate purposes since the client reports equivalent fields.
func computeAccuracy(s *Submission) float64 {
	total := int64(s.N300) + int64(s.N100) + int64(s.N50) + int64(s.NMiss)
	if total == 0 {
		return 0
	}
	points := 300*int64(s.N300) + 100*int64(s.N100) + 50*int64(s.N50)
	return 100 * float64(points) / float64(300*total)
}

// ComputeChecksum builds the deterministic online checksum for a submission:
// an md5 over the gameplay-identifying fields. The pipeline does not call
// it: deduplication uses the client-sent checksum as is.
func ComputeChecksum(s *Submission) string {
	raw := fmt.Sprintf("%s:%s:%d:%d:%d:%d:%d:%d:%d:%d:%s:%d:%v:%d",
		s.MapMD5, s.PlayerName, s.N300, s.N100, s.N50, s.NGeki, s.NKatu, s.NMiss,
		s.Score, s.MaxCombo, s.Grade, s.Mods, s.Passed, s.Mode)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Serialize renders a submission back into the plaintext field layout
// parseSubmission consumes; tests round-trip through this.
func (s *Submission) Serialize() []byte {
	boolStr := func(b bool) string {
		if b {
			return "True"
		}
		return "False"
	}
	lines := []string{
		s.MapMD5,
		s.PlayerName,
		s.OnlineChecksum,
		strconv.Itoa(int(s.N300)),
		strconv.Itoa(int(s.N100)),
		strconv.Itoa(int(s.N50)),
		strconv.Itoa(int(s.NGeki)),
		strconv.Itoa(int(s.NKatu)),
		strconv.Itoa(int(s.NMiss)),
		strconv.FormatInt(s.Score, 10),
		strconv.Itoa(int(s.MaxCombo)),
		boolStr(s.Perfect),
		s.Grade,
		strconv.Itoa(int(s.Mods)),
		boolStr(s.Passed),
		strconv.Itoa(int(s.Mode)),
	}
	return []byte(strings.Join(lines, "\n"))
}

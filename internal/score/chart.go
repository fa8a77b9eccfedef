package score

import (
	"fmt"
	"strings"

	"github.com/sutekina/osu-gulag/internal/store"
)

// chartInput collects everything the three-block response chart renders.
type chartInput struct {
	Map     store.Map
	ScoreID int64
	Domain  string
	UserID  int32
	Sub     *Submission

	PrevBest    *store.Score
	PrevMapRank int64
	NewMapRank  int64

	PrevStats store.Stats
	NewStats  store.Stats
	PrevGlobal int64
	NewGlobal  int64

	Unlocked []Achievement
}

// kvPair renders one before/after column; an absent "before" value encodes
// as an empty string, which the client renders as a dash.
func kvPair(name string, before, after any) string {
	b := ""
	if before != nil {
		b = fmt.Sprint(before)
	}
	return fmt.Sprintf("%sBefore:%s|%sAfter:%v", name, b, name, after)
}

// buildChart renders the newline-separated, pipe-delimited three-block
// response: map info, map ranking before/after, overall ranking before/after
// plus newly unlocked achievements.
func buildChart(in chartInput) []byte {
	var blocks []string

	blocks = append(blocks, strings.Join([]string{
		fmt.Sprintf("beatmapId:%d", in.Map.MapID),
		fmt.Sprintf("beatmapSetId:%d", in.Map.SetID),
		fmt.Sprintf("beatmapPlaycount:%d", in.Map.Plays),
		fmt.Sprintf("beatmapPasscount:%d", in.Map.Passes),
		"approvedDate:",
	}, "|"))

	mapCols := []string{
		"chartId:beatmap",
		fmt.Sprintf("chartUrl:https://%s/b/%d", in.Domain, in.Map.MapID),
		"chartName:Beatmap Ranking",
	}
	if in.PrevBest != nil {
		mapCols = append(mapCols,
			kvPair("rank", in.PrevMapRank, in.NewMapRank),
			kvPair("rankedScore", in.PrevBest.Score, in.Sub.Score),
			kvPair("totalScore", in.PrevBest.Score, in.Sub.Score),
			kvPair("maxCombo", in.PrevBest.MaxCombo, in.Sub.MaxCombo),
			kvPair("accuracy", fmt.Sprintf("%.2f", in.PrevBest.Accuracy), fmt.Sprintf("%.2f", in.Sub.Accuracy)),
			kvPair("pp", in.PrevBest.PP, in.Sub.PP),
		)
	} else {
		mapCols = append(mapCols,
			kvPair("rank", nil, in.NewMapRank),
			kvPair("rankedScore", nil, in.Sub.Score),
			kvPair("totalScore", nil, in.Sub.Score),
			kvPair("maxCombo", nil, in.Sub.MaxCombo),
			kvPair("accuracy", nil, fmt.Sprintf("%.2f", in.Sub.Accuracy)),
			kvPair("pp", nil, in.Sub.PP),
		)
	}
	mapCols = append(mapCols, fmt.Sprintf("onlineScoreId:%d", in.ScoreID))
	blocks = append(blocks, strings.Join(mapCols, "|"))

	names := make([]string, 0, len(in.Unlocked))
	for _, a := range in.Unlocked {
		names = append(names, a.ClientString())
	}
	overallCols := []string{
		"chartId:overall",
		fmt.Sprintf("chartUrl:https://%s/u/%d", in.Domain, in.UserID),
		"chartName:Overall Ranking",
		kvPair("rank", in.PrevGlobal, in.NewGlobal),
		kvPair("rankedScore", in.PrevStats.RankedScore, in.NewStats.RankedScore),
		kvPair("totalScore", in.PrevStats.TotalScore, in.NewStats.TotalScore),
		kvPair("maxCombo", in.PrevStats.MaxCombo, in.NewStats.MaxCombo),
		kvPair("accuracy", fmt.Sprintf("%.2f", in.PrevStats.Accuracy), fmt.Sprintf("%.2f", in.NewStats.Accuracy)),
		kvPair("pp", in.PrevStats.PP, in.NewStats.PP),
		"achievements-new:" + strings.Join(names, "/"),
	}
	blocks = append(blocks, strings.Join(overallCols, "|"))

	return []byte(strings.Join(blocks, "\n"))
}

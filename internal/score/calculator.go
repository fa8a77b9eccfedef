package score

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sutekina/osu-gulag/internal/store"
)

// HTTPCalculator asks an external performance-point service to price a
// submission. The service receives the map id and the play's judgement
// fields and returns {"pp": <float>}.
type HTTPCalculator struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPCalculator builds a calculator against baseURL with a bounded
// request timeout.
func NewHTTPCalculator(baseURL string) *HTTPCalculator {
	return &HTTPCalculator{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPCalculator) Calculate(ctx context.Context, sub *Submission, m store.Map) (float64, error) {
	q := url.Values{}
	q.Set("map_id", strconv.Itoa(int(m.MapID)))
	q.Set("mode", strconv.Itoa(int(sub.Mode)))
	q.Set("mods", strconv.Itoa(int(sub.Mods)))
	q.Set("combo", strconv.Itoa(int(sub.MaxCombo)))
	q.Set("nmiss", strconv.Itoa(int(sub.NMiss)))
	q.Set("acc", strconv.FormatFloat(sub.Accuracy, 'f', 4, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pp service returned %d", resp.StatusCode)
	}

	var out struct {
		PP float64 `json:"pp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.PP, nil
}

package match

import "time"

// StartTimer is the revocable pending-start handle: the final start timer
// and its per-interval alert timers are cancelled together.
type StartTimer struct {
	final  *time.Timer
	alerts []*time.Timer
}

// ScheduleStart arms a start timer that fires onStart after d, and an alert
// timer before each entry in alertsBefore (each measured back from d) that
// fires onAlert with the remaining duration. d must be in (0, 300] seconds;
// any existing pending timer is cancelled first.
func (m *Match) ScheduleStart(d time.Duration, alertsBefore []time.Duration, onStart func(), onAlert func(remaining time.Duration)) error {
	if d <= 0 || d > 300*time.Second {
		return ErrInvalidTimerLength
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingLocked()

	st := &StartTimer{final: time.AfterFunc(d, onStart)}
	for _, before := range alertsBefore {
		if before <= 0 || before >= d {
			continue
		}
		remaining := before
		st.alerts = append(st.alerts, time.AfterFunc(d-before, func() { onAlert(remaining) }))
	}
	m.pendingStart = st
	return nil
}

// CancelStartTimer revokes the pending start timer and every alert timer
// installed alongside it, if any.
func (m *Match) CancelStartTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingLocked()
}

func (m *Match) cancelPendingLocked() {
	if m.pendingStart == nil {
		return
	}
	m.pendingStart.final.Stop()
	for _, a := range m.pendingStart.alerts {
		a.Stop()
	}
	m.pendingStart = nil
}

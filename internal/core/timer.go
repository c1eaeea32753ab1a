package core

import "github.com/vovakirdan/studyroom-server/internal/store"

// Timer is the pomodoro state machine of a single room. It has no clock of
// its own: the room session feeds it one Tick per second while running.
// Every transition returns the events describing it, in emission order.
type Timer struct {
	State       store.TimerState
	Mode        store.TimerMode
	Elapsed     int
	WorkLength  int
	BreakLength int
}

// TimerFromStore builds a Timer from its persisted row.
func TimerFromStore(t *store.Timer) Timer {
	return Timer{
		State:       t.State,
		Mode:        t.Mode,
		Elapsed:     t.ElapsedSeconds,
		WorkLength:  t.WorkLength,
		BreakLength: t.BreakLength,
	}
}

// Record converts the timer back into its persisted row.
func (t *Timer) Record(roomID int64) *store.Timer {
	return &store.Timer{
		RoomID:         roomID,
		State:          t.State,
		Mode:           t.Mode,
		ElapsedSeconds: t.Elapsed,
		WorkLength:     t.WorkLength,
		BreakLength:    t.BreakLength,
	}
}

// Snapshot returns a copy of the timer for roomID.
func (t *Timer) Snapshot(roomID int64) TimerSnapshot {
	return TimerSnapshot{
		RoomID:         roomID,
		State:          t.State,
		Mode:           t.Mode,
		ElapsedSeconds: t.Elapsed,
		WorkLength:     t.WorkLength,
		BreakLength:    t.BreakLength,
	}
}

// Running reports whether the timer is counting.
func (t *Timer) Running() bool {
	return t.State == store.TimerRunning
}

// ActiveLength is the length of the current mode's period.
func (t *Timer) ActiveLength() int {
	if t.Mode == store.ModeBreak {
		return t.BreakLength
	}
	return t.WorkLength
}

// Start moves a stopped timer to running. Elapsed is kept.
func (t *Timer) Start() ([]*Event, error) {
	if t.Running() {
		return nil, ErrInvalidTransition
	}
	t.State = store.TimerRunning
	return []*Event{stateUpdateEvent(t.State)}, nil
}

// Stop pauses a running timer. Elapsed is kept.
func (t *Timer) Stop() ([]*Event, error) {
	if !t.Running() {
		return nil, ErrInvalidTransition
	}
	t.State = store.TimerStopped
	return []*Event{stateUpdateEvent(t.State)}, nil
}

// EnterMode switches to mode, stopping the timer and resetting elapsed.
func (t *Timer) EnterMode(mode store.TimerMode) ([]*Event, error) {
	if t.Mode == mode {
		return nil, ErrInvalidTransition
	}
	events := t.reset()
	t.Mode = mode
	return append(events, modeUpdateEvent(mode)), nil
}

// SetLength changes the length of the current mode, stopping the timer and
// resetting elapsed.
func (t *Timer) SetLength(seconds int) ([]*Event, error) {
	if seconds <= 0 {
		return nil, ErrInvalidLength
	}
	events := t.reset()
	if t.Mode == store.ModeBreak {
		t.BreakLength = seconds
	} else {
		t.WorkLength = seconds
	}
	return append(events, lengthUpdateEvent(t.Mode, seconds)), nil
}

// Tick advances a running timer by one second. When the period runs out the
// timer rolls over into the other mode and keeps running; rolled reports
// that so the caller can restart its tick source.
func (t *Timer) Tick() (events []*Event, rolled bool) {
	if !t.Running() {
		return nil, false
	}

	t.Elapsed++
	events = append(events, timerUpdateEvent(t.Elapsed))
	if t.Elapsed < t.ActiveLength() {
		return events, false
	}

	t.Elapsed = 0
	t.Mode = t.Mode.Opposite()
	events = append(events,
		&Event{Kind: EventTimerFinished},
		timerUpdateEvent(0),
		modeUpdateEvent(t.Mode),
	)
	return events, true
}

func (t *Timer) reset() []*Event {
	var events []*Event
	if t.Running() {
		t.State = store.TimerStopped
		events = append(events, stateUpdateEvent(t.State))
	}
	t.Elapsed = 0
	return append(events, timerUpdateEvent(0))
}

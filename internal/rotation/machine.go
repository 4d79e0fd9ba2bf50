// Package rotation implements the turn-advancement state machine as pure
// functions over a snapshot of one rotation. The package owns no state and
// performs no I/O; the service layer loads the snapshot, applies an operation
// and persists the returned effects in one transaction.
package rotation

import (
	"time"

	"github.com/Liberatex/Rotation/internal/apperr"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

type Action string

const (
	ActionStart   Action = "start"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionPass    Action = "pass"
	ActionTimeout Action = "timeout"
	ActionEnd     Action = "end"
)

// Snapshot is the slice of rotation and session state the machine operates on.
// CurrentTurnUserID is zero and CurrentTurnStartedAt is the zero time exactly
// when the rotation is not active. OpenTurn mirrors the single turn record
// with a null end time, if one exists; it stays open across pause so that
// resume can restore the turn clock without resetting it.
type Snapshot struct {
	Status               Status
	OwnerID              uint
	TurnOrder            []uint
	CurrentTurnUserID    uint
	CurrentTurnStartedAt time.Time
	OpenTurn             *OpenTurn
}

// OpenTurn describes the currently open turn record.
type OpenTurn struct {
	UserID     uint
	TurnNumber int
	StartedAt  time.Time
}

// ClosedTurn instructs the caller to close the open turn record.
type ClosedTurn struct {
	EndedAt    time.Time
	DurationMs int64
	TimedOut   bool
}

// OpenedTurn instructs the caller to append a new open turn record.
type OpenedTurn struct {
	UserID     uint
	TurnNumber int
	StartedAt  time.Time
}

// HistoryEntry is the audit record for the applied action. PassedTo is zero
// unless the action handed the turn to another participant.
type HistoryEntry struct {
	Action   Action
	ActorID  uint
	PassedTo uint
}

// Result carries the post-transition snapshot plus the side effects the
// service must persist atomically with it.
type Result struct {
	Snapshot   Snapshot
	ClosedTurn *ClosedTurn
	OpenedTurn *OpenedTurn
	History    HistoryEntry
}

// Start moves a waiting rotation to active, handing the first turn to the
// head of the turn order.
func Start(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusWaiting {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not waiting", s.Status)
	}
	if actor != s.OwnerID {
		return Result{}, apperr.New(apperr.KindNotAuthorized, "only the session owner can start a rotation")
	}
	if len(s.TurnOrder) == 0 {
		return Result{}, apperr.New(apperr.KindEmptyTurnOrder, "turn order is empty")
	}

	first := s.TurnOrder[0]
	next := s
	next.Status = StatusActive
	next.CurrentTurnUserID = first
	next.CurrentTurnStartedAt = now
	opened := OpenedTurn{UserID: first, TurnNumber: 1, StartedAt: now}
	next.OpenTurn = &OpenTurn{UserID: first, TurnNumber: 1, StartedAt: now}

	return Result{
		Snapshot:   next,
		OpenedTurn: &opened,
		History:    HistoryEntry{Action: ActionStart, ActorID: actor},
	}, nil
}

// Pause suspends an active rotation. The open turn record is left open so the
// turn clock continues across the pause.
func Pause(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusActive {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not active", s.Status)
	}
	if actor != s.OwnerID {
		return Result{}, apperr.New(apperr.KindNotAuthorized, "only the session owner can pause a rotation")
	}

	next := s
	next.Status = StatusPaused
	next.CurrentTurnUserID = 0
	next.CurrentTurnStartedAt = time.Time{}

	return Result{
		Snapshot: next,
		History:  HistoryEntry{Action: ActionPause, ActorID: actor},
	}, nil
}

// Resume reactivates a paused rotation, restoring the current turn from the
// open turn record. The original started-at timestamp is kept so duration
// accounting stays exact.
func Resume(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusPaused {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not paused", s.Status)
	}
	if actor != s.OwnerID {
		return Result{}, apperr.New(apperr.KindNotAuthorized, "only the session owner can resume a rotation")
	}
	if s.OpenTurn == nil {
		return Result{}, apperr.New(apperr.KindInvalidState, "paused rotation has no open turn")
	}

	next := s
	next.Status = StatusActive
	next.CurrentTurnUserID = s.OpenTurn.UserID
	next.CurrentTurnStartedAt = s.OpenTurn.StartedAt

	return Result{
		Snapshot: next,
		History:  HistoryEntry{Action: ActionResume, ActorID: actor},
	}, nil
}

// Pass closes the current turn and hands the slot to the next entry in the
// turn order, wrapping round-robin. Only the current turn holder may pass.
func Pass(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusActive {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not active", s.Status)
	}
	if actor != s.CurrentTurnUserID {
		return Result{}, apperr.New(apperr.KindNotYourTurn, "only the current turn holder can pass")
	}
	return advance(s, actor, now, ActionPass, false)
}

// Timeout has the same effect as Pass but records the elapsed limit on the
// closed turn and tags the history entry accordingly. The session owner may
// also invoke it, to advance past an absent participant.
func Timeout(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusActive {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not active", s.Status)
	}
	if actor != s.CurrentTurnUserID && actor != s.OwnerID {
		return Result{}, apperr.New(apperr.KindNotYourTurn, "only the current turn holder or the session owner can report a timeout")
	}
	return advance(s, actor, now, ActionTimeout, true)
}

// End completes the rotation from active or paused, closing any open turn.
// Completed is terminal.
func End(s Snapshot, actor uint, now time.Time) (Result, error) {
	if s.Status != StatusActive && s.Status != StatusPaused {
		return Result{}, apperr.Newf(apperr.KindInvalidState, "rotation is %s, not active or paused", s.Status)
	}
	if actor != s.OwnerID {
		return Result{}, apperr.New(apperr.KindNotAuthorized, "only the session owner can end a rotation")
	}

	next := s
	next.Status = StatusCompleted
	next.CurrentTurnUserID = 0
	next.CurrentTurnStartedAt = time.Time{}

	res := Result{
		Snapshot: next,
		History:  HistoryEntry{Action: ActionEnd, ActorID: actor},
	}
	if s.OpenTurn != nil {
		res.ClosedTurn = &ClosedTurn{
			EndedAt:    now,
			DurationMs: durationMs(s.OpenTurn.StartedAt, now),
		}
		res.Snapshot.OpenTurn = nil
	}
	return res, nil
}

// advance implements the shared pass/timeout transition. The next index and
// the turn number derive from the holder's position in the turn order, never
// from a stored counter. Membership of turn-order entries is deliberately not
// validated here.
func advance(s Snapshot, actor uint, now time.Time, action Action, timedOut bool) (Result, error) {
	idx := indexOf(s.TurnOrder, s.CurrentTurnUserID)
	nextIdx := (idx + 1) % len(s.TurnOrder)
	nextUser := s.TurnOrder[nextIdx]
	turnNumber := (idx+1)/len(s.TurnOrder) + 1

	var startedAt time.Time
	if s.OpenTurn != nil {
		startedAt = s.OpenTurn.StartedAt
	} else {
		startedAt = s.CurrentTurnStartedAt
	}

	next := s
	next.CurrentTurnUserID = nextUser
	next.CurrentTurnStartedAt = now
	next.OpenTurn = &OpenTurn{UserID: nextUser, TurnNumber: turnNumber, StartedAt: now}

	return Result{
		Snapshot: next,
		ClosedTurn: &ClosedTurn{
			EndedAt:    now,
			DurationMs: durationMs(startedAt, now),
			TimedOut:   timedOut,
		},
		OpenedTurn: &OpenedTurn{UserID: nextUser, TurnNumber: turnNumber, StartedAt: now},
		History:    HistoryEntry{Action: action, ActorID: actor, PassedTo: nextUser},
	}, nil
}

func indexOf(order []uint, userID uint) int {
	for i, id := range order {
		if id == userID {
			return i
		}
	}
	return -1
}

func durationMs(from, to time.Time) int64 {
	d := to.Sub(from).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

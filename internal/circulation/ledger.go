package circulation

import "github.com/mrlokans/librarian/internal/entities"

// Event is something that happens to a borrow.
type Event string

const (
	EventRequest  Event = "request"  // borrower asks for a loan, staff decides later
	EventCheckout Event = "checkout" // loan starts immediately
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventPastDue  Event = "past_due"
	EventReturn   Event = "return"
)

// CopyEffect is what a transition does to the borrowed copy.
type CopyEffect int

const (
	CopyUnchanged CopyEffect = iota
	CopyClaim                // available -> borrowed, unless the borrow already holds it
	CopyRelease              // borrowed -> available, if the borrow holds it
)

func (e CopyEffect) String() string {
	switch e {
	case CopyClaim:
		return "claim"
	case CopyRelease:
		return "release"
	}
	return "none"
}

// Transition is one edge of the borrow state machine.
type Transition struct {
	To     entities.BorrowStatus
	Effect CopyEffect
}

// noStatus is the state of a borrow that does not exist yet.
const noStatus entities.BorrowStatus = ""

var transitions = map[entities.BorrowStatus]map[Event]Transition{
	noStatus: {
		EventRequest:  {To: entities.BorrowStatusPending, Effect: CopyUnchanged},
		EventCheckout: {To: entities.BorrowStatusActive, Effect: CopyClaim},
	},
	entities.BorrowStatusPending: {
		EventApprove: {To: entities.BorrowStatusActive, Effect: CopyClaim},
		EventReject:  {To: entities.BorrowStatusRejected, Effect: CopyRelease},
		EventCancel:  {To: entities.BorrowStatusCancelled, Effect: CopyRelease},
	},
	entities.BorrowStatusActive: {
		EventPastDue: {To: entities.BorrowStatusOverdue, Effect: CopyUnchanged},
		EventReturn:  {To: entities.BorrowStatusReturned, Effect: CopyRelease},
	},
	entities.BorrowStatusOverdue: {
		EventReturn: {To: entities.BorrowStatusReturned, Effect: CopyRelease},
	},
}

// Next returns the transition for ev out of from.
func Next(from entities.BorrowStatus, ev Event) (Transition, bool) {
	t, ok := transitions[from][ev]
	return t, ok
}

// CanTransition reports whether ev is legal in state from.
func CanTransition(from entities.BorrowStatus, ev Event) bool {
	_, ok := Next(from, ev)
	return ok
}

// Events lists the events accepted in state from.
func Events(from entities.BorrowStatus) []Event {
	order := []Event{EventRequest, EventCheckout, EventApprove, EventReject, EventCancel, EventPastDue, EventReturn}
	var out []Event
	for _, ev := range order {
		if CanTransition(from, ev) {
			out = append(out, ev)
		}
	}
	return out
}

func illegal(ev Event, b *entities.Borrow) *Error {
	return newError(KindInvalidStateTransition, "cannot %s borrow %d in status %s", ev, b.ID, b.Status)
}

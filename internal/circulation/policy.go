package circulation

import "github.com/mrlokans/librarian/internal/config"

// Policy decides when a copy is claimed. It is configuration, never derived
// from the caller's identity beyond the explicit StaffBypassesApproval flag.
type Policy struct {
	// RequiresApproval makes new borrows start Pending. When false every
	// borrow is checked out immediately.
	RequiresApproval bool
	// StaffBypassesApproval checks out immediately when the request names a
	// staff member, even if RequiresApproval is set.
	StaffBypassesApproval bool
	// HoldPendingCopies claims the copy for Pending borrows too.
	HoldPendingCopies bool
	// OneOpenBorrowPerWork refuses a second non-terminal borrow of the same
	// Work by the same borrower.
	OneOpenBorrowPerWork bool
	// MaxLoanDays bounds the loan duration. Zero means unbounded.
	MaxLoanDays int
}

func DefaultPolicy() Policy {
	return Policy{
		RequiresApproval:      true,
		StaffBypassesApproval: true,
		OneOpenBorrowPerWork:  true,
	}
}

func PolicyFromConfig(cfg config.Circulation) Policy {
	return Policy{
		RequiresApproval:      cfg.RequiresApproval,
		StaffBypassesApproval: cfg.StaffBypassesApproval,
		HoldPendingCopies:     cfg.HoldPendingCopies,
		OneOpenBorrowPerWork:  cfg.OneOpenBorrowPerWork,
		MaxLoanDays:           cfg.MaxLoanDays,
	}
}

// creationEvent picks the event that opens a new borrow.
func (p Policy) creationEvent(staffInitiated bool) Event {
	if !p.RequiresApproval || (staffInitiated && p.StaffBypassesApproval) {
		return EventCheckout
	}
	return EventRequest
}

// claimsOnCreate reports whether opening a borrow with ev claims its copy.
func (p Policy) claimsOnCreate(ev Event) bool {
	return ev == EventCheckout || p.HoldPendingCopies
}

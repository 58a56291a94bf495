package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/entities"
)

// BorrowsController exposes the borrow lifecycle.
type BorrowsController struct {
	service         BorrowService
	sweeper         OverdueSweeper
	auditor         Auditor
	retry           RetryPolicy
	defaultLoanDays int
}

// NewBorrowsController creates a BorrowsController. sweeper may be nil, in
// which case the sweep endpoint is not registered.
func NewBorrowsController(service BorrowService, sweeper OverdueSweeper, auditor Auditor, retry RetryPolicy, defaultLoanDays int) *BorrowsController {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &BorrowsController{
		service:         service,
		sweeper:         sweeper,
		auditor:         auditor,
		retry:           retry,
		defaultLoanDays: defaultLoanDays,
	}
}

// RegisterRoutes mounts the borrow endpoints on an /api group.
func (bc *BorrowsController) RegisterRoutes(api gin.IRouter) {
	staff := auth.RequireRole(entities.RoleStaff)

	borrows := api.Group("/borrows")
	borrows.POST("", bc.CreateBorrow)
	borrows.GET("", bc.ListBorrows)
	borrows.GET("/mine", bc.MyBorrows)
	borrows.GET("/:id", bc.GetBorrow)
	borrows.POST("/:id/approve", staff, bc.ApproveBorrow)
	borrows.POST("/:id/reject", staff, bc.RejectBorrow)
	borrows.POST("/:id/cancel", bc.CancelBorrow)
	borrows.POST("/:id/return", staff, bc.ReturnBorrow)
	if bc.sweeper != nil {
		borrows.POST("/sweep-overdue", staff, bc.SweepOverdue)
	}
}

// CreateBorrowRequest is the body of POST /api/borrows. DurationDays is
// optional and falls back to the configured default loan period.
type CreateBorrowRequest struct {
	WorkID       uint   `json:"work_id" binding:"required"`
	BorrowerID   uint   `json:"borrower_id"`
	StaffID      *uint  `json:"staff_id"`
	DurationDays *int   `json:"duration_days"`
	Note         string `json:"note" binding:"max=500"`
}

// DecisionRequest is the body of approve, reject and cancel. StaffID and
// ActorID are only read when authentication is disabled.
type DecisionRequest struct {
	StaffID uint   `json:"staff_id"`
	ActorID uint   `json:"actor_id"`
	Reason  string `json:"reason" binding:"max=500"`
}

// CreateBorrow handles POST /api/borrows.
// Borrowers can only borrow for themselves. A staff caller may name any
// borrower and is recorded as the staff member of the borrow.
func (bc *BorrowsController) CreateBorrow(c *gin.Context) {
	var body CreateBorrowRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	req := circulation.CreateBorrowRequest{
		WorkID:       body.WorkID,
		BorrowerID:   body.BorrowerID,
		StaffID:      body.StaffID,
		DurationDays: bc.defaultLoanDays,
		Note:         body.Note,
	}
	if body.DurationDays != nil {
		req.DurationDays = *body.DurationDays
	}

	if !isAuthDisabled(c) {
		caller := auth.GetPersonID(c)
		if auth.IsStaff(c) {
			req.StaffID = &caller
			if req.BorrowerID == 0 {
				req.BorrowerID = caller
			}
		} else {
			if req.BorrowerID != 0 && req.BorrowerID != caller {
				respondForbidden(c, "borrowers can only request borrows for themselves")
				return
			}
			req.BorrowerID = caller
			req.StaffID = nil
		}
	}
	if req.BorrowerID == 0 {
		respondBadRequest(c, "borrower_id is required")
		return
	}

	borrow, err := retryConflicts(c.Request.Context(), bc.retry, func() (*entities.Borrow, error) {
		return bc.service.CreateBorrow(c.Request.Context(), req)
	})
	actor := actingPerson(c, req.BorrowerID)
	if err != nil {
		bc.auditor.LogBorrow(actor, "create", 0, nil, err)
		respondDomainError(c, err, "create borrow")
		return
	}
	bc.auditor.LogBorrow(actor, "create", borrow.ID, borrow, nil)
	respondCreated(c, borrow)
}

// ListBorrows handles GET /api/borrows.
// Non-staff callers only ever see their own borrows.
func (bc *BorrowsController) ListBorrows(c *gin.Context) {
	filter, ok := bc.parseFilter(c)
	if !ok {
		return
	}
	if !auth.IsStaff(c) {
		filter.BorrowerID = auth.GetPersonID(c)
	}
	bc.respondList(c, filter)
}

// MyBorrows handles GET /api/borrows/mine.
func (bc *BorrowsController) MyBorrows(c *gin.Context) {
	filter, ok := bc.parseFilter(c)
	if !ok {
		return
	}
	caller := auth.GetPersonID(c)
	if caller == auth.AnonymousPersonID {
		if filter.BorrowerID == 0 {
			respondBadRequest(c, "borrower_id is required when authentication is disabled")
			return
		}
	} else {
		filter.BorrowerID = caller
	}
	bc.respondList(c, filter)
}

func (bc *BorrowsController) respondList(c *gin.Context, filter circulation.BorrowFilter) {
	borrows, total, err := bc.service.ListBorrows(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err, "list borrows")
		return
	}
	if borrows == nil {
		borrows = []entities.BorrowView{}
	}
	c.JSON(http.StatusOK, newPage(borrows, total, filter.Limit, filter.Offset))
}

func (bc *BorrowsController) parseFilter(c *gin.Context) (circulation.BorrowFilter, bool) {
	var filter circulation.BorrowFilter
	limit, offset, ok := parsePagination(c)
	if !ok {
		return filter, false
	}
	filter.Limit, filter.Offset = limit, offset

	if filter.BorrowerID, ok = parseOptionalQueryID(c, "borrower_id"); !ok {
		return filter, false
	}
	if filter.WorkID, ok = parseOptionalQueryID(c, "work_id"); !ok {
		return filter, false
	}
	if filter.CopyID, ok = parseOptionalQueryID(c, "copy_id"); !ok {
		return filter, false
	}

	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		respondBadRequest(c, err.Error())
		return filter, false
	}
	filter.Statuses = statuses
	return filter, true
}

// parseStatuses reads a comma-separated status list. "open" expands to
// every non-terminal status.
func parseStatuses(raw string) ([]entities.BorrowStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []entities.BorrowStatus
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		if part == "open" {
			out = append(out, entities.OpenBorrowStatuses...)
			continue
		}
		status := entities.BorrowStatus(part)
		if !status.Valid() {
			return nil, fmt.Errorf("invalid status %q", part)
		}
		out = append(out, status)
	}
	return out, nil
}

// GetBorrow handles GET /api/borrows/:id.
func (bc *BorrowsController) GetBorrow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	borrow, err := bc.service.GetBorrow(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get borrow")
		return
	}
	if !auth.IsStaff(c) && borrow.BorrowerID != auth.GetPersonID(c) {
		// Hide the existence of other people's borrows.
		respondNotFound(c, "borrow")
		return
	}
	c.JSON(http.StatusOK, borrow)
}

// ApproveBorrow handles POST /api/borrows/:id/approve.
func (bc *BorrowsController) ApproveBorrow(c *gin.Context) {
	id, body, ok := bc.bindDecision(c)
	if !ok {
		return
	}
	staffID := actingPerson(c, body.StaffID)
	bc.runTransition(c, "approve", id, staffID, func() (*entities.Borrow, error) {
		return bc.service.ApproveBorrow(c.Request.Context(), id, staffID)
	})
}

// RejectBorrow handles POST /api/borrows/:id/reject.
func (bc *BorrowsController) RejectBorrow(c *gin.Context) {
	id, body, ok := bc.bindDecision(c)
	if !ok {
		return
	}
	staffID := actingPerson(c, body.StaffID)
	bc.runTransition(c, "reject", id, staffID, func() (*entities.Borrow, error) {
		return bc.service.RejectBorrow(c.Request.Context(), id, staffID, body.Reason)
	})
}

// CancelBorrow handles POST /api/borrows/:id/cancel. The service decides
// whether the caller may cancel; a signed-in borrower touching someone
// else's borrow gets the same 404 as GetBorrow.
func (bc *BorrowsController) CancelBorrow(c *gin.Context) {
	id, body, ok := bc.bindDecision(c)
	if !ok {
		return
	}
	actorID := actingPerson(c, body.ActorID)
	if actorID == auth.AnonymousPersonID {
		respondBadRequest(c, "actor_id is required when authentication is disabled")
		return
	}

	borrow, err := retryConflicts(c.Request.Context(), bc.retry, func() (*entities.Borrow, error) {
		return bc.service.CancelBorrow(c.Request.Context(), id, actorID)
	})
	bc.auditor.LogBorrow(actorID, "cancel", id, borrow, err)
	if err != nil {
		if circulation.KindOf(err) == circulation.KindUnauthorized && !isAuthDisabled(c) {
			respondNotFound(c, "borrow")
			return
		}
		respondDomainError(c, err, "cancel borrow")
		return
	}
	c.JSON(http.StatusOK, borrow)
}

// ReturnBorrow handles POST /api/borrows/:id/return.
func (bc *BorrowsController) ReturnBorrow(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	bc.runTransition(c, "return", id, auth.GetPersonID(c), func() (*entities.Borrow, error) {
		return bc.service.ReturnBorrow(c.Request.Context(), id)
	})
}

// SweepOverdue handles POST /api/borrows/sweep-overdue.
func (bc *BorrowsController) SweepOverdue(c *gin.Context) {
	marked, err := retryConflicts(c.Request.Context(), bc.retry, func() (int64, error) {
		return bc.sweeper.RunNow(c.Request.Context())
	})
	if err != nil {
		respondDomainError(c, err, "sweep overdue")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

func (bc *BorrowsController) bindDecision(c *gin.Context) (uint, DecisionRequest, bool) {
	var body DecisionRequest
	id, ok := parseIDParam(c, "id")
	if !ok {
		return 0, body, false
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return 0, body, false
		}
	}
	return id, body, true
}

func (bc *BorrowsController) runTransition(c *gin.Context, action string, id, actorID uint, fn func() (*entities.Borrow, error)) {
	borrow, err := retryConflicts(c.Request.Context(), bc.retry, fn)
	bc.auditor.LogBorrow(actorID, action, id, borrow, err)
	if err != nil {
		respondDomainError(c, err, action+" borrow")
		return
	}
	c.JSON(http.StatusOK, borrow)
}

func isAuthDisabled(c *gin.Context) bool {
	return c.GetBool(auth.ContextKeyDisabled)
}

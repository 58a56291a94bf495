package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/recognition"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// --- Response Types ---

// ErrorResponse is the error body of every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse is a success body with an optional payload.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps one page of results.
type PaginatedResponse struct {
	Data    any   `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

func newPage(data any, total int64, limit, offset int) PaginatedResponse {
	return PaginatedResponse{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	}
}

// --- Error Response Helpers ---

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "validation"})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: "not_found"})
}

func respondForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Error: message, Code: string(circulation.KindUnauthorized)})
}

// respondInternalError logs err and hides it from the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("[HTTP] Internal error (%s) request=%s: %v", context, GetRequestID(c), err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: string(circulation.KindInternal)})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// kindStatus maps circulation error kinds onto HTTP statuses.
var kindStatus = map[circulation.Kind]int{
	circulation.KindNotFound:               http.StatusNotFound,
	circulation.KindPersonNotFound:         http.StatusNotFound,
	circulation.KindInvalidStateTransition: http.StatusConflict,
	circulation.KindNoAvailableCopy:        http.StatusConflict,
	circulation.KindDuplicateBorrow:        http.StatusConflict,
	circulation.KindConcurrencyConflict:    http.StatusConflict,
	circulation.KindInvalidDuration:        http.StatusBadRequest,
	circulation.KindInvalidInput:           http.StatusBadRequest,
	circulation.KindUnauthorized:           http.StatusForbidden,
}

// respondDomainError turns a service or repository error into a response.
// Unknown errors become a logged 500.
func respondDomainError(c *gin.Context, err error, context string) {
	var cerr *circulation.Error
	if errors.As(err, &cerr) {
		status, ok := kindStatus[cerr.Kind]
		if !ok {
			respondInternalError(c, err, context)
			return
		}
		respondError(c, status, string(cerr.Kind), cerr.Error())
		return
	}

	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, persons.ErrPersonNotFound),
		errors.Is(err, auth.ErrPersonNotFound):
		respondError(c, http.StatusNotFound, string(circulation.KindNotFound), err.Error())
	case errors.Is(err, catalog.ErrDuplicate), errors.Is(err, catalog.ErrWorkHasCopies),
		errors.Is(err, catalog.ErrCopyInUse), errors.Is(err, catalog.ErrCopyNotAvailable),
		errors.Is(err, persons.ErrPersonExists), errors.Is(err, auth.ErrPersonExists):
		respondError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, catalog.ErrTitleRequired), errors.Is(err, catalog.ErrNameRequired),
		errors.Is(err, catalog.ErrInvalidCopyStatus), errors.Is(err, catalog.ErrInvalidReference),
		errors.Is(err, persons.ErrInvalidRole), isAccountValidationError(err):
		respondError(c, http.StatusBadRequest, string(circulation.KindInvalidInput), err.Error())
	case errors.Is(err, recognition.ErrNotConfigured):
		respondError(c, http.StatusNotImplemented, "not_configured", err.Error())
	case errors.Is(err, recognition.ErrNoMatch), errors.Is(err, recognition.ErrLowConfidence):
		respondError(c, http.StatusNotFound, "no_match", err.Error())
	case errors.Is(err, recognition.ErrEmptyEncoding):
		respondError(c, http.StatusUnprocessableEntity, "no_face", err.Error())
	default:
		respondInternalError(c, err, context)
	}
}

func isAccountValidationError(err error) bool {
	for _, target := range []error{
		auth.ErrUsernameRequired, auth.ErrUsernameInvalid, auth.ErrEmailInvalid,
		auth.ErrInvalidRole, auth.ErrPasswordRequired, auth.ErrPasswordTooShort,
		auth.ErrPasswordTooLong, auth.ErrPasswordBlank,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// --- Success Response Helpers ---

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// --- Parameter Parsing ---

// parseIDParam reads a positive ID from the URL path or responds 400.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalQueryID reads an optional positive ID from the query string.
// A missing parameter yields 0, true.
func parseOptionalQueryID(c *gin.Context, paramName string) (uint, bool) {
	raw := c.Query(paramName)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parsePagination reads limit and offset, clamping limit to maxPageLimit.
func parsePagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondBadRequest(c, "invalid limit")
			return 0, 0, false
		}
		limit = min(v, maxPageLimit)
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondBadRequest(c, "invalid offset")
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}

// --- Caller Identity ---

// actingPerson returns the caller's person ID. With authentication disabled
// there is no caller and the request body has to name one; fallback is that
// body value.
func actingPerson(c *gin.Context, fallback uint) uint {
	if id := auth.GetPersonID(c); id != auth.AnonymousPersonID {
		return id
	}
	return fallback
}

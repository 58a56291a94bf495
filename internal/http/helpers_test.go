package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/recognition"
)

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		value  string
		want   uint
		wantOK bool
	}{
		{"123", 123, true},
		{"abc", 0, false},
		{"-1", 0, false},
		{"0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{{Key: "id", Value: tt.value}}

			id, ok := parseIDParam(c, "id")

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, id)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Contains(t, w.Body.String(), "invalid id")
			}
		})
	}
}

func TestParseOptionalQueryID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/?work_id=456", nil)

	id, ok := parseOptionalQueryID(c, "work_id")
	assert.True(t, ok)
	assert.Equal(t, uint(456), id)

	id, ok = parseOptionalQueryID(c, "borrower_id")
	assert.True(t, ok)
	assert.Zero(t, id)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseOptionalQueryID_Invalid(t *testing.T) {
	for _, value := range []string{"x", "0", "-3"} {
		t.Run(value, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/?work_id="+value, nil)

			_, ok := parseOptionalQueryID(c, "work_id")
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantOK     bool
	}{
		{"", defaultPageLimit, 0, true},
		{"limit=10&offset=20", 10, 20, true},
		{"limit=100000", maxPageLimit, 0, true},
		{"limit=0", 0, 0, false},
		{"offset=-1", 0, 0, false},
		{"limit=ten", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/?"+tt.query, nil)

			limit, offset, ok := parsePagination(c)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantLimit, limit)
				assert.Equal(t, tt.wantOffset, offset)
			} else {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestRespondDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", circulation.ErrNotFound, http.StatusNotFound, "not_found"},
		{"person not found", fmt.Errorf("wrapped: %w", &circulation.Error{Kind: circulation.KindPersonNotFound, Detail: "person 4"}), http.StatusNotFound, "person_not_found"},
		{"invalid transition", circulation.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
		{"no copy", circulation.ErrNoAvailableCopy, http.StatusConflict, "no_available_copy"},
		{"duplicate", circulation.ErrDuplicateBorrow, http.StatusConflict, "duplicate_borrow"},
		{"conflict", circulation.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
		{"duration", circulation.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
		{"input", circulation.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"unauthorized", circulation.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"circulation internal", &circulation.Error{Kind: circulation.KindInternal, Err: errors.New("disk")}, http.StatusInternalServerError, "internal"},
		{"catalog not found", catalog.ErrNotFound, http.StatusNotFound, "not_found"},
		{"work has copies", catalog.ErrWorkHasCopies, http.StatusConflict, "conflict"},
		{"title required", catalog.ErrTitleRequired, http.StatusBadRequest, "invalid_input"},
		{"person exists", persons.ErrPersonExists, http.StatusConflict, "conflict"},
		{"bad username", auth.ErrUsernameInvalid, http.StatusBadRequest, "invalid_input"},
		{"recognition off", recognition.ErrNotConfigured, http.StatusNotImplemented, "not_configured"},
		{"no match", recognition.ErrNoMatch, http.StatusNotFound, "no_match"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondDomainError(c, tt.err, "test")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestRespondInternalError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondInternalError(c, errors.New("password=hunter2"), "test")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestNewPage(t *testing.T) {
	page := newPage([]int{1, 2}, 5, 2, 2)
	assert.True(t, page.HasMore)

	page = newPage([]int{5}, 5, 2, 4)
	assert.False(t, page.HasMore)
}

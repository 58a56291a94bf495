package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Includes(t *testing.T) {
	tests := []struct {
		role  Role
		other Role
		want  bool
	}{
		{RoleAdmin, RoleStaff, true},
		{RoleAdmin, RoleBorrower, true},
		{RoleStaff, RoleStaff, true},
		{RoleStaff, RoleAdmin, false},
		{RoleBorrower, RoleStaff, false},
		{Role("ghost"), RoleBorrower, false},
		{RoleAdmin, Role("ghost"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.other), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Includes(tt.other))
		})
	}
}

func TestBorrowStatus_IsTerminal(t *testing.T) {
	for _, s := range OpenBorrowStatuses {
		assert.False(t, s.IsTerminal(), s)
	}
	for _, s := range []BorrowStatus{BorrowStatusReturned, BorrowStatusCancelled, BorrowStatusRejected} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, BorrowStatus("lost").Valid())
}

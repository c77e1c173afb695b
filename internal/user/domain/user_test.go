package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	memberdomain "territory-service/internal/membership/domain"
)

func TestUser_Validate(t *testing.T) {
	testCases := []struct {
		name string
		user User
		want error
	}{
		{"ok", User{Email: "ana@example.com", Name: "Ana"}, nil},
		{"missing email", User{Name: "Ana"}, ErrEmailRequired},
		{"bad email", User{Email: "not-an-email", Name: "Ana"}, ErrEmailInvalid},
		{"blank name", User{Email: "ana@example.com", Name: "  "}, ErrNameRequired},
		{"bad role", User{Email: "ana@example.com", Name: "Ana", Role: "admin"}, memberdomain.ErrInvalidRole},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u := tc.user
			assert.ErrorIs(t, u.Validate(), tc.want)
		})
	}
}

func TestUser_ValidateDefaultsRole(t *testing.T) {
	u := User{Email: "ana@example.com", Name: "Ana"}
	assert.NoError(t, u.Validate())
	assert.Equal(t, memberdomain.RolePublisher, u.Role)
}

func TestUser_Membership(t *testing.T) {
	u := User{ID: "u1", CongregationID: "c1", Role: memberdomain.RoleElder}
	assert.Equal(t, memberdomain.Membership{UserID: "u1", CongregationID: "c1", Role: memberdomain.RoleElder}, u.Membership())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", NormalizeEmail("  Ana@Example.COM "))
}

package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"territory-service/internal/membership/domain"
)

func testProvider(t *testing.T) *TokenProvider {
	t.Helper()
	p, err := NewTestTokenProvider()
	require.NoError(t, err)
	return p
}

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p := testProvider(t)
	m := domain.Membership{UserID: "user-1", CongregationID: "cong-1", Role: domain.RoleElder}

	token, exp, err := p.IssueAccess(m)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := p.ValidateAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, domain.RoleElder, id.Role)
	assert.Equal(t, "cong-1", id.CongregationID)
	assert.NotEmpty(t, id.TokenID)
	assert.WithinDuration(t, exp, id.ExpiresAt, time.Second)
}

func TestTokenProvider_NoCongregation(t *testing.T) {
	p := testProvider(t)
	token, _, err := p.IssueAccess(domain.Membership{UserID: "user-2", Role: domain.RolePublisher})
	require.NoError(t, err)

	id, err := p.ValidateAccess(token)
	require.NoError(t, err)
	assert.Empty(t, id.CongregationID)
	assert.Equal(t, domain.RolePublisher, id.Role)
}

func TestTokenProvider_UniqueTokenIDs(t *testing.T) {
	p := testProvider(t)
	m := domain.Membership{UserID: "user-1", Role: domain.RolePublisher}
	a, _, err := p.IssueAccess(m)
	require.NoError(t, err)
	b, _, err := p.IssueAccess(m)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenProvider_Expired(t *testing.T) {
	p := testProvider(t)
	issuedAt := time.Now().Add(-2 * time.Hour)
	p.now = func() time.Time { return issuedAt }
	token, _, err := p.IssueAccess(domain.Membership{UserID: "user-1", Role: domain.RolePublisher})
	require.NoError(t, err)

	p.now = time.Now
	_, err = p.ValidateAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_WrongAudienceOrIssuer(t *testing.T) {
	p := testProvider(t)
	token, _, err := p.IssueAccess(domain.Membership{UserID: "user-1", Role: domain.RolePublisher})
	require.NoError(t, err)

	other := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "other-audience", time.Hour)
	_, err = other.ValidateAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other = NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", "test-audience", time.Hour)
	_, err = other.ValidateAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenProvider_Malformed(t *testing.T) {
	p := testProvider(t)
	for _, s := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := p.ValidateAccess(s)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", s)
	}
}

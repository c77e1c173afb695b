package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	congdomain "territory-service/internal/congregation/domain"
	memberdomain "territory-service/internal/membership/domain"
	memberservice "territory-service/internal/membership/service"
	"territory-service/internal/events"
	"territory-service/internal/security"
	"territory-service/internal/store/memstore"
	userdomain "territory-service/internal/user/domain"
)

type testEnv struct {
	store  *memstore.Store
	tokens *security.TokenProvider
	auth   *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	store := memstore.New()
	members := memberservice.New(memberservice.Deps{
		Members:       store.Memberships(),
		Congregations: store.Congregations(),
		Tokens:        tokens,
	})
	hasher := security.NewHasher(4)
	return &testEnv{
		store:  store,
		tokens: tokens,
		auth:   NewAuthService(store.Users(), store.Congregations(), members, nil, hasher, nil),
	}
}

func strPtr(s string) *string { return &s }

func TestRegister_Plain(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.auth.Register(context.Background(), RegisterInput{Name: " Ana ", Email: "Ana@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", res.User.Email)
	assert.Equal(t, "Ana", res.User.Name)
	assert.Equal(t, memberdomain.RolePublisher, res.User.Role)
	assert.Empty(t, res.User.CongregationID)
	assert.NotEqual(t, "password1", res.User.PasswordHash)

	id, err := env.tokens.ValidateAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id.UserID)
}

func TestRegister_WithInviteCode(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutCongregation(congdomain.Congregation{ID: "c1", Name: "North", InviteCode: "ALPHA123"})

	res, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1", InviteCode: "ALPHA123"})
	require.NoError(t, err)
	assert.Equal(t, "c1", res.User.CongregationID)
	assert.Equal(t, memberdomain.RolePublisher, res.User.Role)

	stored, ok := env.store.User(res.User.ID)
	require.True(t, ok)
	assert.Equal(t, "c1", stored.CongregationID)
}

func TestRegister_UnknownInviteCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1", InviteCode: "NOPE1234"})
	assert.ErrorIs(t, err, ErrRegistrationInviteCode)

	u, err := env.store.Users().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Nil(t, u, "no account is created for a bad invite code")
}

func TestRegister_CreatesCongregationAsElder(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.auth.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "password1",
		NewCongregation: &NewCongregation{Name: "South", Description: "Sunday"},
	})
	require.NoError(t, err)
	assert.Equal(t, memberdomain.RoleElder, res.User.Role)
	assert.NotEmpty(t, res.User.CongregationID)
	assert.Equal(t, 1, env.store.CongregationCount())

	id, err := env.tokens.ValidateAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, memberdomain.RoleElder, id.Role)
}

func TestRegister_Validation(t *testing.T) {
	testCases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"short password", RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "short"}, ErrPasswordTooShort},
		{"missing email", RegisterInput{Name: "Ana", Password: "password1"}, userdomain.ErrEmailRequired},
		{"bad email", RegisterInput{Name: "Ana", Email: "nope", Password: "password1"}, userdomain.ErrEmailInvalid},
		{"missing name", RegisterInput{Name: "  ", Email: "ana@example.com", Password: "password1"}, userdomain.ErrNameRequired},
		{"blank congregation name", RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1", NewCongregation: &NewCongregation{}}, congdomain.ErrNameRequired},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.auth.Register(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	require.NoError(t, err)
	_, err = env.auth.Register(context.Background(), RegisterInput{Name: "Ana 2", Email: " ANA@example.com", Password: "password2"})
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	require.NoError(t, err)
	// Role changes made by others show up in the next login token.
	env.store.PutUser(func() userdomain.User {
		u, _ := env.store.User(reg.User.ID)
		u.CongregationID = "c1"
		u.Role = memberdomain.RoleTerritoryServant
		return u
	}())

	res, err := env.auth.Login(context.Background(), "ANA@example.com ", "password1")
	require.NoError(t, err)
	id, err := env.tokens.ValidateAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "c1", id.CongregationID)
	assert.Equal(t, memberdomain.RoleTerritoryServant, id.Role)
}

func TestLogin_InvalidCredentialsAreFlattened(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	require.NoError(t, err)

	for _, tc := range []struct{ email, password string }{
		{"ana@example.com", "wrong-password"},
		{"nobody@example.com", "password1"},
		{"", "password1"},
		{"ana@example.com", ""},
	} {
		_, err := env.auth.Login(context.Background(), tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "%s/%s", tc.email, tc.password)
	}
}

func TestGetProfile(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutCongregation(congdomain.Congregation{ID: "c1", Name: "North", InviteCode: "ALPHA123"})
	env.store.PutUser(userdomain.User{ID: "u1", Name: "Ana", Email: "ana@example.com", CongregationID: "c1", Role: memberdomain.RoleElder})
	env.store.PutUser(userdomain.User{ID: "u2", Name: "Bia", Email: "bia@example.com", Role: memberdomain.RolePublisher})

	p, err := env.auth.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p.Congregation)
	assert.Equal(t, "North", p.Congregation.Name)

	p, err = env.auth.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, p.Congregation)

	_, err = env.auth.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	require.NoError(t, err)

	u, err := env.auth.UpdateProfile(context.Background(), reg.User.ID, ProfileUpdate{
		Name:     strPtr("Ana Maria"),
		PhotoURL: strPtr("https://img.example.com/a.png"),
		Password: strPtr("new-password"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)

	_, err = env.auth.Login(context.Background(), "ana@example.com", "new-password")
	assert.NoError(t, err)
	_, err = env.auth.Login(context.Background(), "ana@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateProfile_Errors(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.auth.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "password1"})
	require.NoError(t, err)
	_, err = env.auth.Register(context.Background(), RegisterInput{Name: "Bia", Email: "bia@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = env.auth.UpdateProfile(context.Background(), a.User.ID, ProfileUpdate{Password: strPtr("")})
	assert.ErrorIs(t, err, ErrNothingToUpdate)

	_, err = env.auth.UpdateProfile(context.Background(), a.User.ID, ProfileUpdate{Email: strPtr("bia@example.com")})
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)

	_, err = env.auth.UpdateProfile(context.Background(), a.User.ID, ProfileUpdate{Name: strPtr(" ")})
	assert.ErrorIs(t, err, userdomain.ErrNameRequired)

	_, err = env.auth.UpdateProfile(context.Background(), "ghost", ProfileUpdate{Name: strPtr("X")})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// commitTx passes nested calls through to the outermost one, which commits after fn returns.
type commitTx struct {
	mu        sync.Mutex
	depth     int
	committed bool
	commitErr error
}

func (c *commitTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.depth++
	outer := c.depth == 1
	if outer {
		c.committed = false
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.depth--
		c.mu.Unlock()
	}()
	if err := fn(ctx); err != nil || !outer {
		return err
	}
	if c.commitErr != nil {
		return c.commitErr
	}
	c.mu.Lock()
	c.committed = true
	c.mu.Unlock()
	return nil
}

func (c *commitTx) isCommitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// eventSink records events with the commit state observed when each arrived.
type eventSink struct {
	mu           sync.Mutex
	tx           *commitTx
	published    []events.Type
	audited      []events.Type
	beforeCommit int
}

func (e *eventSink) Publish(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.published = append(e.published, ev.Type)
	if !e.tx.isCommitted() {
		e.beforeCommit++
	}
}

func (e *eventSink) Record(_ context.Context, ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audited = append(e.audited, ev.Type)
	if !e.tx.isCommitted() {
		e.beforeCommit++
	}
}

func newTxEnv(t *testing.T, tx *commitTx) (*AuthService, *memstore.Store, *eventSink) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	store := memstore.New()
	sink := &eventSink{tx: tx}
	members := memberservice.New(memberservice.Deps{
		Members:       store.Memberships(),
		Congregations: store.Congregations(),
		Tokens:        tokens,
		Tx:            tx,
		Audit:         sink,
		Publisher:     sink,
	})
	return NewAuthService(store.Users(), store.Congregations(), members, tx, security.NewHasher(4), nil), store, sink
}

func TestRegister_EventsFollowCommit(t *testing.T) {
	tx := &commitTx{}
	auth, store, sink := newTxEnv(t, tx)
	store.PutCongregation(congdomain.Congregation{ID: "c1", Name: "North", InviteCode: "ALPHA123"})

	_, err := auth.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "password1",
		NewCongregation: &NewCongregation{Name: "South"},
	})
	require.NoError(t, err)
	_, err = auth.Register(context.Background(), RegisterInput{
		Name: "Ben", Email: "ben@example.com", Password: "password1", InviteCode: "ALPHA123",
	})
	require.NoError(t, err)

	assert.Equal(t, []events.Type{events.CongregationCreated, events.MemberJoined}, sink.published)
	assert.Equal(t, []events.Type{events.CongregationCreated, events.MemberJoined}, sink.audited)
	assert.Zero(t, sink.beforeCommit, "no event may precede the registration commit")
}

func TestRegister_FailedCommitEmitsNothing(t *testing.T) {
	tx := &commitTx{commitErr: errors.New("commit failed")}
	auth, _, sink := newTxEnv(t, tx)

	_, err := auth.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "password1",
		NewCongregation: &NewCongregation{Name: "South"},
	})
	require.EqualError(t, err, "commit failed")
	assert.Empty(t, sink.published)
	assert.Empty(t, sink.audited)
}

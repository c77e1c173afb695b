// Package memstore is an in-memory implementation of the user, congregation and membership
// repositories sharing one mutex-guarded table, for tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	congdomain "territory-service/internal/congregation/domain"
	congrepo "territory-service/internal/congregation/repository"
	"territory-service/internal/membership/domain"
	memberrepo "territory-service/internal/membership/repository"
	userdomain "territory-service/internal/user/domain"
	userrepo "territory-service/internal/user/repository"
)

// Store holds users and congregations. The zero value is not usable; call New.
type Store struct {
	mu            sync.Mutex
	users         map[string]*userdomain.User
	congregations map[string]*congdomain.Congregation

	// GetErr, when set, is returned by every read.
	GetErr error
	// WriteErr, when set, is returned by every write.
	WriteErr error
	// BeforeConditionalWrite runs inside UpdateRoleIfUnchanged and RemoveIfUnchanged
	// before the guard is checked, with the lock released; tests use it to interleave writers.
	BeforeConditionalWrite func()
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[string]*userdomain.User),
		congregations: make(map[string]*congdomain.Congregation),
	}
}

// Users, Congregations and Memberships expose s through each repository interface.
func (s *Store) Users() userrepo.Repository { return userView{s} }
func (s *Store) Congregations() congrepo.Repository { return congView{s} }
func (s *Store) Memberships() memberrepo.Repository { return memberView{s} }

// PutUser inserts or replaces u.
func (s *Store) PutUser(u userdomain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// PutCongregation inserts or replaces c.
func (s *Store) PutCongregation(c congdomain.Congregation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.congregations[c.ID] = &cp
}

// User returns a copy of the user with id.
func (s *Store) User(id string) (userdomain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return userdomain.User{}, false
	}
	return *u, true
}

// CongregationCount returns the number of stored congregations.
func (s *Store) CongregationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.congregations)
}

type userView struct{ s *Store }

func (v userView) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (v userView) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	email = userdomain.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (v userView) Create(_ context.Context, u *userdomain.User) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	email := userdomain.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return userrepo.ErrEmailTaken
		}
	}
	cp := *u
	cp.Email = email
	s.users[u.ID] = &cp
	return nil
}

func (v userView) UpdateProfile(_ context.Context, u *userdomain.User) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	cur, ok := s.users[u.ID]
	if !ok {
		return nil
	}
	email := userdomain.NormalizeEmail(u.Email)
	for id, existing := range s.users {
		if id != u.ID && existing.Email == email {
			return userrepo.ErrEmailTaken
		}
	}
	cur.Email = email
	cur.Name = u.Name
	cur.PhotoURL = u.PhotoURL
	cur.PasswordHash = u.PasswordHash
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

type congView struct{ s *Store }

func (v congView) GetByID(_ context.Context, id string) (*congdomain.Congregation, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	c, ok := s.congregations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (v congView) GetByInviteCode(_ context.Context, code string) (*congdomain.Congregation, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	for _, c := range s.congregations {
		if c.InviteCode == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (v congView) Create(_ context.Context, c *congdomain.Congregation) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	for _, existing := range s.congregations {
		if existing.InviteCode == c.InviteCode {
			return congrepo.ErrInviteCodeTaken
		}
	}
	cp := *c
	s.congregations[c.ID] = &cp
	return nil
}

type memberView struct{ s *Store }

func (v memberView) Get(_ context.Context, userID string) (*domain.Membership, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	m := u.Membership()
	return &m, nil
}

func (v memberView) set(userID, congregationID string, role domain.Role) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	u, ok := s.users[userID]
	if !ok {
		return memberrepo.ErrUserNotFound
	}
	u.CongregationID = congregationID
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (v memberView) Assign(_ context.Context, userID, congregationID string, role domain.Role) error {
	return v.set(userID, congregationID, role)
}

func (v memberView) Detach(_ context.Context, userID string) error {
	return v.set(userID, "", domain.RolePublisher)
}

func (v memberView) conditional(obs domain.Observed, apply func(target *userdomain.User)) (bool, error) {
	s := v.s
	if hook := s.BeforeConditionalWrite; hook != nil {
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return false, s.WriteErr
	}
	target, ok := s.users[obs.TargetID]
	if !ok || target.CongregationID != obs.CongregationID || target.Role != obs.TargetRole {
		return false, nil
	}
	actor, ok := s.users[obs.ActorID]
	if !ok || actor.CongregationID != obs.CongregationID || actor.Role != obs.ActorRole {
		return false, nil
	}
	apply(target)
	target.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (v memberView) UpdateRoleIfUnchanged(_ context.Context, obs domain.Observed, role domain.Role) (bool, error) {
	return v.conditional(obs, func(target *userdomain.User) { target.Role = role })
}

func (v memberView) RemoveIfUnchanged(_ context.Context, obs domain.Observed) (bool, error) {
	return v.conditional(obs, func(target *userdomain.User) {
		target.CongregationID = ""
		target.Role = domain.RolePublisher
	})
}

func (v memberView) ListMembers(_ context.Context, congregationID string) ([]domain.Member, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	out := []domain.Member{}
	for _, u := range s.users {
		if congregationID != "" && u.CongregationID == congregationID {
			out = append(out, domain.Member{UserID: u.ID, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL, Role: u.Role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (v memberView) CountMembers(ctx context.Context, congregationID string) (int, error) {
	list, err := v.ListMembers(ctx, congregationID)
	return len(list), err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	congdomain "territory-service/internal/congregation/domain"
	congrepo "territory-service/internal/congregation/repository"
	"territory-service/internal/db"
	memberdomain "territory-service/internal/membership/domain"
	"territory-service/internal/security"
	userdomain "territory-service/internal/user/domain"
	userrepo "territory-service/internal/user/repository"
)

type fixture struct {
	Password      string                `yaml:"password"`
	Congregations []congregationFixture `yaml:"congregations"`
	// Users belong to no congregation.
	Users []userFixture `yaml:"users"`
}

type congregationFixture struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	InviteCode  string        `yaml:"inviteCode"`
	Members     []userFixture `yaml:"members"`
}

type userFixture struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

func parseFixture(b []byte) (*fixture, error) {
	var fx fixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return nil, err
	}
	if len(fx.Password) < 8 {
		return nil, errors.New("fixture password must be at least 8 characters")
	}
	for _, c := range fx.Congregations {
		if strings.TrimSpace(c.InviteCode) == "" {
			return nil, fmt.Errorf("congregation %q has no invite code", c.Name)
		}
		for _, m := range c.Members {
			if _, err := memberdomain.ParseRole(m.Role); err != nil {
				return nil, fmt.Errorf("member %s: %w %q", m.Email, err, m.Role)
			}
		}
	}
	return &fx, nil
}

type seeder struct {
	users         userrepo.Repository
	congregations congrepo.Repository
	tx            db.Transactor
	hasher        *security.Hasher
	logger        *zap.Logger
	now           func() time.Time
}

type result struct {
	Congregations int
	Users         int
	Skipped       int
}

// apply writes fx in one transaction. Existing rows are left untouched, including their roles.
func (s *seeder) apply(ctx context.Context, fx *fixture) (result, error) {
	var res result
	hash, err := s.hasher.Hash([]byte(fx.Password))
	if err != nil {
		return res, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	if s.now != nil {
		now = s.now()
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, cf := range fx.Congregations {
			cong, err := s.congregations.GetByInviteCode(ctx, cf.InviteCode)
			if err != nil {
				return err
			}
			if cong == nil {
				cong = &congdomain.Congregation{
					ID:          uuid.NewString(),
					Name:        cf.Name,
					Description: cf.Description,
					InviteCode:  cf.InviteCode,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := cong.Validate(); err != nil {
					return err
				}
				if err := s.congregations.Create(ctx, cong); err != nil {
					return fmt.Errorf("create congregation %s: %w", cf.InviteCode, err)
				}
				res.Congregations++
			} else {
				res.Skipped++
			}
			for _, m := range cf.Members {
				created, err := s.createUser(ctx, m, cong.ID, hash, now)
				if err != nil {
					return err
				}
				res.count(created)
			}
		}
		for _, u := range fx.Users {
			created, err := s.createUser(ctx, u, "", hash, now)
			if err != nil {
				return err
			}
			res.count(created)
		}
		return nil
	})
	return res, err
}

func (r *result) count(created bool) {
	if created {
		r.Users++
	} else {
		r.Skipped++
	}
}

func (s *seeder) createUser(ctx context.Context, f userFixture, congregationID, hash string, now time.Time) (bool, error) {
	existing, err := s.users.GetByEmail(ctx, userdomain.NormalizeEmail(f.Email))
	if err != nil {
		return false, err
	}
	if existing != nil {
		s.logger.Debug("seed user exists", zap.String("email", f.Email))
		return false, nil
	}
	u := &userdomain.User{
		ID:             uuid.NewString(),
		Email:          userdomain.NormalizeEmail(f.Email),
		Name:           f.Name,
		PasswordHash:   hash,
		CongregationID: congregationID,
		Role:           memberdomain.Role(f.Role),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.Validate(); err != nil {
		return false, fmt.Errorf("user %s: %w", f.Email, err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		return false, fmt.Errorf("create user %s: %w", f.Email, err)
	}
	return true, nil
}

package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNameRequired is returned when a congregation has a blank name.
var ErrNameRequired = errors.New("congregation name is required")

// Congregation is a tenant. InviteCode is unique across all congregations and is the only way to join.
type Congregation struct {
	ID          string
	Name        string
	Description string
	InviteCode  string
	// CreatedBy is the founding user; empty once that user is deleted.
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate trims the name and description and rejects a blank name.
func (c *Congregation) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" {
		return ErrNameRequired
	}
	return nil
}

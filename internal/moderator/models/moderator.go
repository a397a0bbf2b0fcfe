package models

import (
	"strings"
	"time"

	dErrors "escrowops/pkg/domain-errors"
)

// Capability is one named permission a moderator may hold. The set is fixed.
type Capability string

const (
	CapabilityBan       Capability = "can_ban"
	CapabilityFreeze    Capability = "can_freeze"
	CapabilityBroadcast Capability = "can_broadcast"
	CapabilityEditFees  Capability = "can_edit_fees"
)

// AllCapabilities lists the capability set in display order.
var AllCapabilities = []Capability{CapabilityBan, CapabilityFreeze, CapabilityBroadcast, CapabilityEditFees}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CapabilityBan, CapabilityFreeze, CapabilityBroadcast, CapabilityEditFees:
		return c, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown capability: "+s)
}

// Capabilities is a moderator's full capability set. It is a value type so
// readers always see a whole set.
type Capabilities struct {
	Ban       bool `json:"can_ban"`
	Freeze    bool `json:"can_freeze"`
	Broadcast bool `json:"can_broadcast"`
	EditFees  bool `json:"can_edit_fees"`
}

func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapabilityBan:
		return c.Ban
	case CapabilityFreeze:
		return c.Freeze
	case CapabilityBroadcast:
		return c.Broadcast
	case CapabilityEditFees:
		return c.EditFees
	}
	return false
}

// With returns a copy with capability set to value.
func (c Capabilities) With(capability Capability, value bool) Capabilities {
	switch capability {
	case CapabilityBan:
		c.Ban = value
	case CapabilityFreeze:
		c.Freeze = value
	case CapabilityBroadcast:
		c.Broadcast = value
	case CapabilityEditFees:
		c.EditFees = value
	}
	return c
}

const maxUserIDLen = 64

// Moderator is a user with a capability set.
//
// Invariants:
//   - UserID is non-empty and unique
//   - DealsHandled never decreases
//   - Created on first capability write, never deleted
type Moderator struct {
	UserID       string       `json:"user_id"`
	Username     string       `json:"username"`
	DisplayName  string       `json:"display_name"`
	Capabilities Capabilities `json:"capabilities"`
	DealsHandled uint64       `json:"deals_handled"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewModerator provisions a moderator with every capability false.
func NewModerator(userID string, now time.Time) (*Moderator, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return &Moderator{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if len(userID) > maxUserIDLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "user id is too long")
	}
	return nil
}

// RecordDeal bumps the handled-deals counter.
func (m *Moderator) RecordDeal(now time.Time) {
	m.DealsHandled++
	m.UpdatedAt = now
}

// Clone returns a deep copy.
func (m *Moderator) Clone() *Moderator {
	c := *m
	return &c
}

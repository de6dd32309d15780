package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// PermissionLevel is the four-rung role hierarchy. The zero value means no
// permission at all. Values are ordered so that comparisons read naturally:
// level >= PermissionTreasurer.
type PermissionLevel int

const (
	PermissionNone PermissionLevel = iota
	PermissionMember
	PermissionTreasurer
	PermissionAdmin
	PermissionOwner
)

func (l PermissionLevel) String() string {
	switch l {
	case PermissionMember:
		return "MEMBER"
	case PermissionTreasurer:
		return "TREASURER"
	case PermissionAdmin:
		return "ADMIN"
	case PermissionOwner:
		return "OWNER"
	}
	return "NONE"
}

// AtLeast reports whether l grants everything min grants.
func (l PermissionLevel) AtLeast(min PermissionLevel) bool {
	return l >= min
}

func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MEMBER":
		return PermissionMember, nil
	case "TREASURER":
		return PermissionTreasurer, nil
	case "ADMIN":
		return PermissionAdmin, nil
	case "OWNER":
		return PermissionOwner, nil
	case "", "NONE":
		return PermissionNone, nil
	}
	return PermissionNone, fmt.Errorf("%w: unknown permission level %q", ErrValidation, s)
}

func (l PermissionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *PermissionLevel) UnmarshalText(b []byte) error {
	v, err := ParsePermissionLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Value stores the level by name so the column stays readable.
func (l PermissionLevel) Value() (driver.Value, error) {
	return l.String(), nil
}

func (l *PermissionLevel) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return l.UnmarshalText([]byte(v))
	case []byte:
		return l.UnmarshalText(v)
	case nil:
		*l = PermissionNone
		return nil
	}
	return fmt.Errorf("cannot scan %T into PermissionLevel", src)
}

// PlatformRole is a role grant observed on the chat platform.
type PlatformRole string

const (
	PlatformRoleOwner     PlatformRole = "OWNER"
	PlatformRoleAdmin     PlatformRole = "ADMIN"
	PlatformRoleTreasurer PlatformRole = "TREASURER"
	PlatformRoleMember    PlatformRole = "MEMBER"
)

// Level maps a platform grant onto the stored hierarchy. A platform owner maps
// to ADMIN: ownership is never acquired through role sync.
func (r PlatformRole) Level() PermissionLevel {
	switch r {
	case PlatformRoleOwner, PlatformRoleAdmin:
		return PermissionAdmin
	case PlatformRoleTreasurer:
		return PermissionTreasurer
	case PlatformRoleMember:
		return PermissionMember
	}
	return PermissionNone
}

// Actor is whoever triggers a mutation: a platform account or the scheduler.
type Actor struct {
	ExternalID string `json:"external_id"`
	System     bool   `json:"system,omitempty"`
}

func UserActor(externalID string) Actor {
	return Actor{ExternalID: externalID}
}

func SystemActor(name string) Actor {
	return Actor{ExternalID: "system:" + name, System: true}
}

func (a Actor) String() string {
	return a.ExternalID
}

// Package identity resolves the user a job runs as.
//
// The daemon only knows a job's owner as the numeric uid on its descriptor
// file. Resolver turns that into a username, primary and supplementary
// groups, and a home directory using the host account database.
package identity

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// ErrSuperuser is returned when an operation reserved for ordinary users is
// attempted by the superuser, or the reverse.
var ErrSuperuser = errors.New("superuser")

// ErrUnknownUser is returned when a uid has no account entry.
var ErrUnknownUser = errors.New("unknown user")

// Identity describes one account.
type Identity struct {
	Username string
	UID      uint32
	GID      uint32
	Groups   []uint32
	HomeDir  string
}

// IsSuperuser reports whether the identity is uid 0 or gid 0.
func (i Identity) IsSuperuser() bool {
	return i.UID == 0 || i.GID == 0
}

func (i Identity) String() string {
	if i.Username == "" {
		return strconv.FormatUint(uint64(i.UID), 10)
	}
	return fmt.Sprintf("%s(%d)", i.Username, i.UID)
}

// Current returns the effective identity of this process without consulting
// the account database.
func Current() Identity {
	return Identity{
		UID: uint32(os.Geteuid()),
		GID: uint32(os.Getegid()),
	}
}

// Resolver maps a uid onto an account.
type Resolver interface {
	LookupUID(uid uint32) (Identity, error)
}

// System resolves accounts through the host's user database.
type System struct{}

// LookupUID returns the account for uid. Supplementary groups that cannot be
// listed are omitted rather than failing the lookup.
func (System) LookupUID(uid uint32) (Identity, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		var unknown user.UnknownUserIdError
		if errors.As(err, &unknown) {
			return Identity{}, fmt.Errorf("uid %d: %w", uid, ErrUnknownUser)
		}
		return Identity{}, fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup uid %d: primary group: %w", uid, err)
	}

	ident := Identity{
		Username: u.Username,
		UID:      uid,
		GID:      gid,
		HomeDir:  u.HomeDir,
	}
	if groupIDs, err := u.GroupIds(); err == nil {
		for _, raw := range groupIDs {
			if id, err := parseID(raw); err == nil {
				ident.Groups = append(ident.Groups, id)
			}
		}
	}
	return ident, nil
}

func parseID(raw string) (uint32, error) {
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", raw, err)
	}
	return uint32(value), nil
}

package identity_test

import (
	"errors"
	"os"
	"testing"

	"simq/internal/identity"
)

func TestIsSuperuser(t *testing.T) {
	tests := []struct {
		name  string
		ident identity.Identity
		want  bool
	}{
		{"root uid", identity.Identity{UID: 0, GID: 100}, true},
		{"root gid", identity.Identity{UID: 1000, GID: 0}, true},
		{"ordinary", identity.Identity{UID: 1000, GID: 1000}, false},
	}
	for _, tt := range tests {
		if got := tt.ident.IsSuperuser(); got != tt.want {
			t.Errorf("%s: IsSuperuser() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCurrentMatchesProcess(t *testing.T) {
	current := identity.Current()
	if current.UID != uint32(os.Geteuid()) || current.GID != uint32(os.Getegid()) {
		t.Fatalf("unexpected identity %+v", current)
	}
}

func TestSystemLookupCurrentUser(t *testing.T) {
	uid := uint32(os.Getuid())
	ident, err := identity.System{}.LookupUID(uid)
	if err != nil {
		t.Skipf("account database unavailable: %v", err)
	}
	if ident.UID != uid || ident.Username == "" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestSystemLookupUnknownUser(t *testing.T) {
	_, err := identity.System{}.LookupUID(4000000000)
	if err == nil {
		t.Fatal("expected lookup of unassigned uid to fail")
	}
	if !errors.Is(err, identity.ErrUnknownUser) {
		t.Logf("lookup failed without ErrUnknownUser: %v", err)
	}
}

func TestIdentityString(t *testing.T) {
	if got := (identity.Identity{Username: "alice", UID: 1001}).String(); got != "alice(1001)" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := (identity.Identity{UID: 42}).String(); got != "42" {
		t.Fatalf("unexpected string %q", got)
	}
}

package testsupport

import (
	"context"
	"fmt"
	"sync"

	"simq/internal/identity"
	"simq/internal/spawn"
)

// Launch records one SpawnAs call.
type Launch struct {
	Identity identity.Identity
	WorkDir  string
	Command  string
}

// RecordingSpawner records launches instead of starting processes. Err, when
// set, is returned from every SpawnAs call after the launch is recorded.
type RecordingSpawner struct {
	mu       sync.Mutex
	launches []Launch
	Err      error
	// OnSpawn runs inside SpawnAs before it returns.
	OnSpawn func(Launch)
}

// SpawnAs implements spawn.Spawner.
func (s *RecordingSpawner) SpawnAs(_ context.Context, ident identity.Identity, workDir, command string) (*spawn.Process, error) {
	launch := Launch{Identity: ident, WorkDir: workDir, Command: command}
	s.mu.Lock()
	s.launches = append(s.launches, launch)
	n := len(s.launches)
	hook := s.OnSpawn
	err := s.Err
	s.mu.Unlock()

	if hook != nil {
		hook(launch)
	}
	if err != nil {
		return nil, err
	}
	return spawn.NewExitedProcess(10000+n, 0), nil
}

// Launches returns a copy of the recorded launches.
func (s *RecordingSpawner) Launches() []Launch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Launch, len(s.launches))
	copy(out, s.launches)
	return out
}

// Commands returns the recorded command lines in launch order.
func (s *RecordingSpawner) Commands() []string {
	launches := s.Launches()
	out := make([]string, 0, len(launches))
	for _, launch := range launches {
		out = append(out, launch.Command)
	}
	return out
}

// StaticResolver resolves uids from a fixed table.
type StaticResolver map[uint32]identity.Identity

// LookupUID implements identity.Resolver.
func (r StaticResolver) LookupUID(uid uint32) (identity.Identity, error) {
	ident, ok := r[uid]
	if !ok {
		return identity.Identity{}, fmt.Errorf("uid %d: %w", uid, identity.ErrUnknownUser)
	}
	return ident, nil
}

package queue

import (
	"strconv"
	"time"
)

// NoJob is the sentinel reported for Oldest/Newest when the queue is empty.
const NoJob int64 = -1

// ScanResult summarizes the jobs currently present in the directory.
type ScanResult struct {
	Count  int
	Oldest int64
	Newest int64
}

// Empty reports whether no jobs were found.
func (r ScanResult) Empty() bool {
	return r.Count == 0
}

// NextID returns the ID a new submission should receive: one more than the
// newest job, or 1 for an empty queue.
func (r ScanResult) NextID() int64 {
	if r.Empty() {
		return 1
	}
	return r.Newest + 1
}

// Job is a parsed descriptor. UID and GID are the descriptor's owner.
type Job struct {
	ID               int64
	WorkingDirectory string
	Command          string
	UID              uint32
	GID              uint32
}

// Entry is the filesystem view of a descriptor, without parsing it.
type Entry struct {
	ID      int64
	Path    string
	UID     uint32
	GID     uint32
	Size    int64
	ModTime time.Time
}

// ParseID reports whether name is a job descriptor name and returns its ID.
// Only canonical non-negative decimals qualify: "7" is a job, "007", "+7"
// and "-7" are not.
func ParseID(name string) (int64, bool) {
	if name == "" || name[0] < '0' || name[0] > '9' {
		return 0, false
	}
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	if strconv.FormatInt(id, 10) != name {
		return 0, false
	}
	return id, true
}

// FormatID renders an ID as a descriptor name.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"simq/internal/identity"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQueueDirectory verifies directory access and notes when other users
// cannot submit because the directory is not world-writable.
func CheckQueueDirectory(path string) Result {
	const name = "Queue directory"

	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	result := CheckDirectoryAccess(name, path)
	if !result.Passed {
		return result
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	mode := info.Mode()
	if mode.Perm()&0o002 == 0 {
		result.Detail = fmt.Sprintf("%s (read/write ok; not world-writable, only the owner can submit)", path)
	} else if mode&os.ModeSticky == 0 {
		result.Detail = fmt.Sprintf("%s (read/write ok; sticky bit unset, submitters can remove each other's jobs)", path)
	}
	return result
}

// CheckLogDirectory accepts a missing log directory, which the daemon
// creates, but not one that exists and cannot be written.
func CheckLogDirectory(path string) Result {
	const name = "Log directory"

	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	return CheckDirectoryAccess(name, path)
}

// CheckSuperuser verifies the daemon can switch to job owners.
func CheckSuperuser(ident identity.Identity) Result {
	const name = "Daemon identity"

	if !ident.IsSuperuser() {
		return Result{Name: name, Detail: fmt.Sprintf("uid %d gid %d (error: the daemon must be run by root)", ident.UID, ident.GID)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("uid %d gid %d", ident.UID, ident.GID)}
}

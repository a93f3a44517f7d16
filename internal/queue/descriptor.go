package queue

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"simq/internal/config"
)

const tempPrefix = config.ReservedPrefix + "new-"

// Write persists a descriptor for id. The working directory goes on the
// first line and the command arguments, joined by single spaces, on the
// second. The file is written under a reserved temporary name and linked
// into place, so readers never see a partial descriptor and an existing
// descriptor is never replaced.
func (s *Store) Write(id int64, workingDirectory string, args []string) error {
	if id < 0 {
		return fmt.Errorf("write job: invalid id %d", id)
	}
	if !filepath.IsAbs(workingDirectory) {
		return fmt.Errorf("write job %d: working directory %q is not absolute", id, workingDirectory)
	}
	command := strings.Join(args, " ")
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("write job %d: command is empty", id)
	}
	if strings.ContainsAny(workingDirectory, "\r\n") || strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("write job %d: working directory and command must not contain newlines", id)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf("%s%d-*", tempPrefix, id))
	if err != nil {
		return fmt.Errorf("create job file %s: %w", s.Path(id), err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.WriteString(tmp, workingDirectory+"\n"+command+"\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write job file %s: %w", s.Path(id), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write job file %s: %w", s.Path(id), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write job file %s: %w", s.Path(id), err)
	}

	if err := os.Link(tmpPath, s.Path(id)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("write job %d: %w", id, ErrJobExists)
		}
		return fmt.Errorf("create job file %s: %w", s.Path(id), err)
	}
	return nil
}

// Read parses the descriptor for id. A missing descriptor yields
// ErrJobNotFound; a descriptor that is not exactly two non-empty lines
// yields an *InvalidJobError. Neither is fatal to the caller.
//
// Symbolic links are never followed. The owner recorded on the Job comes
// from the same open handle the contents are read from.
func (s *Store) Read(id int64) (*Job, error) {
	file, err := os.OpenFile(s.Path(id), os.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read job %d: %w", id, ErrJobNotFound)
		}
		if errors.Is(err, unix.ELOOP) {
			return nil, &InvalidJobError{ID: id, Reason: "job file is a symbolic link"}
		}
		return nil, fmt.Errorf("read job %d: %w", id, err)
	}
	defer file.Close()

	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return nil, fmt.Errorf("stat job %d: %w", id, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, &InvalidJobError{ID: id, Reason: "job file is not a regular file"}
	}

	reader := bufio.NewReader(file)
	workDir, err := readLine(reader)
	if err != nil {
		return nil, &InvalidJobError{ID: id, Reason: "missing working directory line"}
	}
	command, err := readLine(reader)
	if err != nil {
		return nil, &InvalidJobError{ID: id, Reason: "missing command line"}
	}
	if _, err := reader.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, &InvalidJobError{ID: id, Reason: "unexpected content after command line"}
	}
	if workDir == "" || !filepath.IsAbs(workDir) {
		return nil, &InvalidJobError{ID: id, Reason: fmt.Sprintf("working directory %q is not absolute", workDir)}
	}
	if strings.TrimSpace(command) == "" {
		return nil, &InvalidJobError{ID: id, Reason: "command is empty"}
	}

	return &Job{
		ID:               id,
		WorkingDirectory: workDir,
		Command:          strings.TrimRight(command, " "),
		UID:              st.Uid,
		GID:              st.Gid,
	}, nil
}

// readLine returns the next line without its terminator. A final line with
// no trailing newline still counts; an exhausted reader does not.
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Remove deletes the descriptor for id. A missing descriptor is not an error.
func (s *Store) Remove(id int64) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove job %d: %w", id, err)
	}
	return nil
}

// Stat reports ownership, size, and modification time for id's descriptor.
// A symbolic link is described as itself, not its target.
func (s *Store) Stat(id int64) (Entry, error) {
	path := s.Path(id)
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return Entry{}, fmt.Errorf("stat job %d: %w", id, ErrJobNotFound)
		}
		return Entry{}, fmt.Errorf("stat job %d: %w", id, err)
	}
	return Entry{
		ID:      id,
		Path:    path,
		UID:     st.Uid,
		GID:     st.Gid,
		Size:    st.Size,
		ModTime: time.Unix(st.Mtim.Unix()),
	}, nil
}

// Quarantine moves id's descriptor into quarantineDir, creating it when
// needed, and returns the new path. A name clash with an earlier
// quarantined descriptor gets a numeric suffix.
func (s *Store) Quarantine(id int64, quarantineDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}
	target := filepath.Join(quarantineDir, FormatID(id))
	if _, err := os.Lstat(target); err == nil {
		target = fmt.Sprintf("%s.%d", target, now.UnixNano())
	}
	if err := os.Rename(s.Path(id), target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("quarantine job %d: %w", id, ErrJobNotFound)
		}
		return "", fmt.Errorf("quarantine job %d: %w", id, err)
	}
	return target, nil
}

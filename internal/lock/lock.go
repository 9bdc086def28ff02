// Package lock prevents two batch runs from rewriting the same dataset at once.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrLocked is returned when another live process holds the run lock.
var ErrLocked = errors.New("run lock is held by another process")

const ownerFile = "owner.json"

// ownerGrace is how long a lock directory may exist without an owner file
// before it is treated as left behind by a crashed acquire.
const ownerGrace = 30 * time.Second

// Owner describes the process holding a lock.
type Owner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
	Command   string `json:"command,omitempty"`
}

// RunLock is a directory-based lock: creating the directory is the atomic
// acquire, and an owner file inside identifies the holder.
type RunLock struct {
	name string
	path string
	held bool

	// pidAlive reports whether pid is running on this host.
	pidAlive func(ctx context.Context, pid int) (bool, error)
}

// GenerateRunLockName creates a consistent lock name for a dataset file.
// Names follow the format "goaccredit:run:{base name}".
func GenerateRunLockName(dataset string) string {
	base := strings.TrimSuffix(filepath.Base(dataset), filepath.Ext(dataset))
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, base)
	return "goaccredit:run:" + sanitized
}

// NewRunLock returns the lock guarding dataset, stored under lockDir.
// The lock is not acquired until Acquire is called.
func NewRunLock(lockDir, dataset string) *RunLock {
	name := GenerateRunLockName(dataset)
	dirName := "." + strings.ReplaceAll(name, ":", "-") + ".lock"
	if lockDir == "" {
		lockDir = "."
	}
	return &RunLock{
		name:     name,
		path:     filepath.Join(lockDir, dirName),
		pidAlive: processExists,
	}
}

// Name returns the lock name.
func (l *RunLock) Name() string { return l.name }

// Path returns the lock directory.
func (l *RunLock) Path() string { return l.path }

// IsHeld reports whether this instance holds the lock.
func (l *RunLock) IsHeld() bool { return l.held }

// Acquire takes the lock. A lock left behind by a dead process on this host
// is taken over. With force any existing lock is broken.
func (l *RunLock) Acquire(ctx context.Context, force bool) error {
	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	for range 2 {
		err := os.Mkdir(l.path, 0o755)
		if err == nil {
			return l.writeOwner()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire %s: %w", l.name, err)
		}

		owner, readErr := ReadOwner(l.path)
		if !force && !l.stale(ctx, owner, readErr) {
			if readErr != nil {
				return fmt.Errorf("%w: %s", ErrLocked, l.path)
			}
			return fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
				ErrLocked, l.path, owner.PID, owner.CreatedAt, owner.Hostname)
		}
		if err := os.RemoveAll(l.path); err != nil {
			return fmt.Errorf("break stale lock %s: %w", l.path, err)
		}
	}
	return fmt.Errorf("%w: %s (contended)", ErrLocked, l.path)
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *RunLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	_ = os.Remove(filepath.Join(l.path, ownerFile))
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %s: %w", l.name, err)
	}
	return nil
}

func (l *RunLock) writeOwner() error {
	owner := Owner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
		Command:   strings.Join(os.Args, " "),
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("encode lock owner: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, ownerFile), data, 0o644); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock owner: %w", err)
	}
	l.held = true
	return nil
}

// stale reports whether an existing lock belongs to a process that is gone.
// Owners on other hosts and corrupt owner files are never considered stale.
// A lock with no owner file at all is stale once it is older than ownerGrace.
func (l *RunLock) stale(ctx context.Context, owner Owner, readErr error) bool {
	if errors.Is(readErr, fs.ErrNotExist) {
		info, err := os.Stat(l.path)
		return err == nil && time.Since(info.ModTime()) > ownerGrace
	}
	if readErr != nil || owner.PID <= 0 {
		return false
	}
	if owner.Hostname != "" && owner.Hostname != hostnameOrUnknown() {
		return false
	}
	alive, err := l.pidAlive(ctx, owner.PID)
	if err != nil {
		return false
	}
	return !alive
}

// ReadOwner reads the owner file of a lock directory.
func ReadOwner(lockPath string) (Owner, error) {
	var owner Owner
	data, err := os.ReadFile(filepath.Join(lockPath, ownerFile))
	if err != nil {
		return owner, err
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return owner, fmt.Errorf("decode lock owner: %w", err)
	}
	return owner, nil
}

func processExists(ctx context.Context, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}

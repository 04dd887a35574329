package statestore

import (
	"fmt"
	"os"
	"time"
)

// LockTimeoutError reports that the advisory lock could not be acquired in
// time. It is recoverable: another writer holds the lock and the caller may
// retry.
type LockTimeoutError struct {
	Path   string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("state lock %s: timed out after %s", e.Path, e.Waited)
}

// withLock serializes writers across processes with an exclusive lock file
// next to the state file. A lock older than lockStaleAfter is treated as
// abandoned by a crashed writer and broken.
func (s *Store) withLock(fn func() error) error {
	lockPath := s.path + ".lock"
	start := time.Now()
	for {
		// #nosec G304 -- lock path derives from the configured state path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, FileMode)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !isLockContention(err, lockPath) {
			return fmt.Errorf("acquire state lock: %w", err)
		}
		if isStaleLock(lockPath, time.Now().UTC(), s.lockStaleAfter) {
			_ = os.Remove(lockPath)
			continue
		}
		waited := time.Since(start)
		if waited >= s.lockTimeout {
			return &LockTimeoutError{Path: lockPath, Waited: waited}
		}
		time.Sleep(s.lockRetry)
	}
}

func isLockContention(acquireErr error, lockPath string) bool {
	if os.IsExist(acquireErr) {
		return true
	}
	if !os.IsPermission(acquireErr) {
		return false
	}
	_, statErr := os.Stat(lockPath)
	return statErr == nil
}

func isStaleLock(lockPath string, now time.Time, staleAfter time.Duration) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime().UTC()) > staleAfter
}

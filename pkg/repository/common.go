package repository

import "strings"

// criticalError stops the retry loop: the wrapped error is not transient
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }

func (e *criticalError) Unwrap() error { return e.err }

// lockMarkers are the sqlite busy/locked signatures worth retrying
var lockMarkers = []string{"SQLITE_BUSY", "database is locked", "database table is locked"}

// isLockError reports whether the error is a transient sqlite lock condition
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range lockMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

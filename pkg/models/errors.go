package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionLost marks an outcome whose browser session disconnected
	ErrSessionLost = errors.New("session lost")
	// ErrHandleClosed is returned when a closed session is reopened
	ErrHandleClosed = errors.New("session handle already closed")
	// ErrRunInProgress is returned when a second run is started
	ErrRunInProgress = errors.New("a run is already in progress")
)

// LoadError means the spreadsheet could not be turned into rows
type LoadError struct {
	Source  string
	Missing []string
	Err     error
}

func (e *LoadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("load %s: missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SessionInitError means the automation session never became ready
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session init: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// SessionLostError is raised when the session dies mid-run
type SessionLostError struct {
	Row Row
	Err error
}

func (e *SessionLostError) Error() string {
	return fmt.Sprintf("session lost at row %d: %v", e.Row.Index, e.Err)
}

func (e *SessionLostError) Unwrap() error { return e.Err }

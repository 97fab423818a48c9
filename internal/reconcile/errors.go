package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means a lookup came back empty. Deletes treat it as done.
	ErrNotFound = errors.New("not found on remote")

	ErrDepthExceeded   = errors.New("reconcile depth exceeded")
	ErrNotFolderTarget = errors.New("path cannot be mirrored as a folder")
)

// CascadeError reports a folder chain that stopped half way. Folders in
// Created were committed remotely and are left in place.
type CascadeError struct {
	Target  string
	Failed  string
	Created []string
	Err     error
}

func (e *CascadeError) Error() string {
	msg := fmt.Sprintf("failed to create %s while mirroring %s", e.Failed, e.Target)
	if len(e.Created) > 0 {
		msg += fmt.Sprintf(" (kept %s)", strings.Join(e.Created, ", "))
	}

	return msg + ": " + e.Err.Error()
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

package tmuxsession

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotInitialized is returned by every operation before a successful Initialize.
	ErrNotInitialized = errors.New("tmux session service is not initialized")
	// ErrPrerequisiteMissing means tmux was not found on the remote host.
	ErrPrerequisiteMissing = errors.New("tmux is not installed on the remote host")
)

// AlreadyExistsError is returned when creating or renaming onto a name
// that is already taken.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("session %q already exists", e.Name)
}

// CreationVerificationError means new-session reported success but the
// session did not show up in the listing that followed.
type CreationVerificationError struct {
	Name string
}

func (e *CreationVerificationError) Error() string {
	return fmt.Sprintf("session %q was not found after creation", e.Name)
}

// ValidationError rejects bad input before anything is sent to the host.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var sessionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateSessionName accepts non-empty names made of letters, digits,
// underscore and hyphen.
func ValidateSessionName(name string) error {
	if name == "" {
		return &ValidationError{Field: "session name", Reason: "must not be empty"}
	}
	if !sessionNameRe.MatchString(name) {
		return &ValidationError{Field: "session name", Reason: "only letters, digits, '_' and '-' are allowed"}
	}
	return nil
}

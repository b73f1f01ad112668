package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for the user-correctable failure taxonomy. ErrValidation
// lives next to the input parsing in model.go.
var (
	// ErrPermission indicates the acting user lacks moderator privilege.
	ErrPermission = errors.New("workflow: moderator privilege required")
	// ErrNotFound indicates the referenced submission is missing or in the
	// wrong approval state for the operation.
	ErrNotFound = errors.New("workflow: submission not found")
	// ErrNoSubmissions indicates voting cannot close without approved submissions.
	ErrNoSubmissions = errors.New("workflow: no approved submissions")
	// ErrNoVotes indicates voting cannot close when no votes were cast.
	ErrNoVotes = errors.New("workflow: no votes cast")
	// ErrAnnounce marks a committed mutation whose outbound announcement
	// failed. The store is not rolled back and the post is not retried.
	ErrAnnounce = errors.New("workflow: announcement failed")
)

// ServiceError carries an operation-scoped code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

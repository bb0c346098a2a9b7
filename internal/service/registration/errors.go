package registration

import "errors"

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrEventNotOpen         = errors.New("event is not open for registration")
	ErrUserNotFound         = errors.New("user not found")
	ErrAlreadyRegistered    = errors.New("user already registered for event")
	ErrCapacityExceeded     = errors.New("event is at capacity")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrTransient            = errors.New("transient storage failure")
)

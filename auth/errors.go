package auth

// Error reports that the caller is not, or is no longer, authenticated.
// The message always points at a remediation (run the login flow, check the
// subscription) and never contains token material.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

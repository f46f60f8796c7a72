package types

// FieldError pairs a field name with a human-readable message so callers
// can render per-field validation feedback instead of a bare failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// UserResponse is the result of every credential operation. Either Errors
// is non-empty, or User and AccessToken are set. The refresh token is
// deliberately absent: it travels only through an HTTP-only cookie.
type UserResponse struct {
	Errors      []FieldError `json:"errors,omitempty"`
	User        *User        `json:"user,omitempty"`
	AccessToken string       `json:"accessToken,omitempty"`
}

// Failed reports whether the operation produced field errors.
func (r *UserResponse) Failed() bool {
	return len(r.Errors) > 0
}

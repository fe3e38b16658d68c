package domain

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthTokenResponse is the response of POST /users/login.
// User may be absent on older backends.
type AuthTokenResponse struct {
	Token string        `json:"token"`
	User  *UserSnapshot `json:"user,omitempty"`
}

// ErrorResponse is the error body returned by the remote API.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

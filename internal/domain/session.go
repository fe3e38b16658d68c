package domain

// Session is the authenticated identity held by the client.
// Token and User are set and cleared together.
type Session struct {
	Token string
	User  UserSnapshot
}

// Present reports whether the session holds a credential.
func (s Session) Present() bool {
	return s.Token != "" && s.User.Valid()
}

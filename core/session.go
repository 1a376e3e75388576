package core

// Session identifies one live client connection as a (user identity,
// one-time connection token) pair. It is immutable once created and is used
// only as a map key; the registry drops all state keyed by a Session when the
// underlying connection closes.
type Session struct {
	UserID string
	Token  string
}

// NewSession constructs a Session key.
func NewSession(userID, token string) Session {
	return Session{UserID: userID, Token: token}
}

// String renders the session for log output. The token is part of the key and
// deliberately not truncated; tokens are one-time values scoped to a single
// connection.
func (s Session) String() string { return s.UserID + "/" + s.Token }

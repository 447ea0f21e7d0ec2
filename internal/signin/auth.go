package signin

import (
	"errors"

	"github.com/phillip-england/openhouse/internal/credentials"
	"github.com/phillip-england/openhouse/internal/security"
	"github.com/phillip-england/openhouse/internal/session"
)

// CredentialSource looks up a login by exact username.
type CredentialSource interface {
	Lookup(username string) (credentials.User, error)
}

// AgentIdentity is the authenticated agent.
type AgentIdentity struct {
	Username string
	Name     string
}

type Authenticator struct {
	creds CredentialSource
}

func NewAuthenticator(creds CredentialSource) *Authenticator {
	return &Authenticator{creds: creds}
}

// Authenticate checks username and password exactly as typed.
func (a *Authenticator) Authenticate(username, password string) (AgentIdentity, error) {
	if a == nil || a.creds == nil {
		return AgentIdentity{}, &ConfigurationError{Err: errors.New("credential store is not loaded")}
	}
	user, err := a.creds.Lookup(username)
	if err != nil {
		if errors.Is(err, credentials.ErrUnknownUser) {
			return AgentIdentity{}, ErrInvalidCredentials
		}
		return AgentIdentity{}, &ConfigurationError{Err: err}
	}
	if err := security.CheckSecret(user.Password); err != nil {
		return AgentIdentity{}, &ConfigurationError{Err: err}
	}
	if user.Name == "" {
		return AgentIdentity{}, &ConfigurationError{Err: errors.New("credential has no display name")}
	}
	if !security.MatchPassword(password, user.Password) {
		return AgentIdentity{}, ErrInvalidCredentials
	}
	return AgentIdentity{Username: username, Name: user.Name}, nil
}

// Login authenticates and moves the session to the intake page. The session is
// left untouched on failure.
func (a *Authenticator) Login(sess *session.Session, username, password string) (AgentIdentity, error) {
	id, err := a.Authenticate(username, password)
	if err != nil {
		return AgentIdentity{}, err
	}
	sess.Agent = id.Name
	sess.Page = session.PageIntake
	return id, nil
}

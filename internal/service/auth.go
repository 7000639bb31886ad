package service

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/forumd-dev/forumd/internal/domain"
	"github.com/forumd-dev/forumd/internal/errors"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/protocol"
)

// AuthStore is the slice of the forum store the auth flow needs.
type AuthStore interface {
	User(name domain.Username) (domain.User, bool)
	Register(user domain.User) error
	MarkOnline(name domain.Username) error
	MarkOffline(name domain.Username) error
	IsOnline(name domain.Username) bool
}

// LoginStep is the outcome of one AUTH exchange phase, already expressed in
// wire vocabulary. The handler wraps it into a response envelope.
type LoginStep struct {
	Type   string
	Status string
	Token  string
}

// Auth drives the two-phase login handshake. Per client address it tracks
// whether a username probe is awaiting its password, so the second datagram
// of the handshake can be correlated with the first.
type Auth struct {
	store  AuthStore
	tokens TokenService

	mu      sync.Mutex
	pending map[string]pendingLogin // keyed by client address
}

type pendingLogin struct {
	username string
	known    bool
}

func NewAuth(store AuthStore, tokens TokenService) *Auth {
	return &Auth{
		store:   store,
		tokens:  tokens,
		pending: make(map[string]pendingLogin),
	}
}

// validUsername rejects names that would not survive the credentials file
// format: one "username credential" pair per line, split on the first space.
// Whitespace or control characters in a name would let a registration mint a
// line that parses as a different user.
func validUsername(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Probe handles the first AUTH datagram, carrying only a username.
func (a *Auth) Probe(addr, username string) LoginStep {
	if !validUsername(username) {
		return LoginStep{Status: protocol.StatusFail}
	}
	if a.store.IsOnline(username) {
		a.clearPending(addr)
		logger.Log.Info("login rejected, already online", "user", username)
		return LoginStep{Type: protocol.TypeOnline, Status: protocol.StatusError}
	}

	_, known := a.store.User(username)
	a.mu.Lock()
	a.pending[addr] = pendingLogin{username: username, known: known}
	a.mu.Unlock()

	if known {
		return LoginStep{Type: protocol.TypeKnownUser, Status: protocol.StatusPasswordNeed}
	}
	return LoginStep{Type: protocol.TypeNewUser, Status: protocol.StatusPasswordNeed}
}

// Submit handles the follow-up AUTH datagram carrying the password. A lost
// or never-sent probe is tolerated: the registry decides whether the name is
// known.
func (a *Auth) Submit(addr, username, password string) LoginStep {
	if !validUsername(username) {
		return LoginStep{Status: protocol.StatusFail}
	}
	a.mu.Lock()
	p, ok := a.pending[addr]
	delete(a.pending, addr)
	a.mu.Unlock()
	if !ok || p.username != username {
		_, known := a.store.User(username)
		p = pendingLogin{username: username, known: known}
	}

	if p.known {
		user, ok := a.store.User(username)
		if !ok || !CredentialMatches(user.Credential, password) {
			logger.Log.Info("login failed, wrong password", "user", username)
			return LoginStep{Type: protocol.TypeBadPassword, Status: protocol.StatusFail}
		}
		return a.finishLogin(username, protocol.TypeLoginOK)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return LoginStep{Status: protocol.StatusFail}
	}
	if err := a.store.Register(domain.User{Name: username, Credential: string(hash)}); err != nil {
		// Raced with another registration for the same name: fall back to a
		// normal credential check against the winner.
		if user, ok := a.store.User(username); ok && CredentialMatches(user.Credential, password) {
			return a.finishLogin(username, protocol.TypeLoginOK)
		}
		logger.Log.Warn("registration failed", "user", username, "error", err)
		return LoginStep{Type: protocol.TypeBadPassword, Status: protocol.StatusFail}
	}
	logger.Log.Info("new user registered", "user", username)
	return a.finishLogin(username, protocol.TypeRegistered)
}

func (a *Auth) finishLogin(username, stepType string) LoginStep {
	if err := a.store.MarkOnline(username); err != nil {
		// Lost a race against a concurrent login for the same name.
		logger.Log.Info("login rejected, already online", "user", username)
		return LoginStep{Type: protocol.TypeOnline, Status: protocol.StatusError}
	}
	token, err := a.tokens.NewToken(username)
	if err != nil {
		// The password path still authenticates; issue no token.
		token = ""
	}
	logger.Log.Info("user logged in", "user", username)
	return LoginStep{Type: stepType, Status: protocol.StatusOK, Token: token}
}

// Logout removes the caller from the online set.
func (a *Auth) Logout(username string) error {
	if err := a.store.MarkOffline(username); err != nil {
		return err
	}
	logger.Log.Info("user logged out", "user", username)
	return nil
}

// Authorize gates every non-AUTH command: the caller must be online and must
// present either a valid session token for that username or the password.
func (a *Auth) Authorize(username, password, token string) error {
	if !a.store.IsOnline(username) {
		return errors.ErrAuthRequired
	}
	return a.CheckCredentials(username, password, token)
}

// CheckCredentials verifies identity without requiring the caller to be
// online. XIT uses it directly so logging out when already logged out
// surfaces NOT_ONLINE from the store instead of failing the auth gate.
func (a *Auth) CheckCredentials(username, password, token string) error {
	if token != "" {
		subject, err := a.tokens.Verify(token)
		if err == nil && subject == username {
			return nil
		}
		return errors.ErrAuthRequired
	}
	user, ok := a.store.User(username)
	if !ok || !CredentialMatches(user.Credential, password) {
		return errors.ErrAuthRequired
	}
	return nil
}

func (a *Auth) clearPending(addr string) {
	a.mu.Lock()
	delete(a.pending, addr)
	a.mu.Unlock()
}

// CredentialMatches compares a supplied password against a stored
// credential. Credentials registered by the server are bcrypt hashes;
// entries inherited from a bootstrap credentials file may be plaintext and
// are compared directly.
func CredentialMatches(credential, password string) bool {
	if strings.HasPrefix(credential, "$2a$") || strings.HasPrefix(credential, "$2b$") || strings.HasPrefix(credential, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(credential), []byte(password)) == nil
	}
	return credential == password
}

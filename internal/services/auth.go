package services

import (
	"context"
	"errors"
	"sync"

	"github.com/kiranshivaraju/lorastudio/internal/client"
)

// AuthState describes the client's credentials.
type AuthState int

const (
	SignedOut AuthState = iota
	SignedIn
	// Rejected means the API refused the configured key.
	Rejected
)

func (s AuthState) String() string {
	switch s {
	case SignedIn:
		return "signed in"
	case Rejected:
		return "rejected"
	default:
		return "signed out"
	}
}

// AccountFetcher resolves the account behind the configured API key.
type AccountFetcher interface {
	Me(ctx context.Context) (*client.Account, error)
}

// AuthChange is published whenever the state or account changes.
type AuthChange struct {
	State   AuthState
	Account *client.Account
}

// Auth tracks whether the configured API key is accepted.
type Auth struct {
	api AccountFetcher
	b   *broadcaster[AuthChange]

	mu      sync.Mutex
	state   AuthState
	account *client.Account
}

func NewAuth(api AccountFetcher) *Auth {
	return &Auth{api: api, b: newBroadcaster[AuthChange]()}
}

// Verify asks the API who the key belongs to. A rejection moves the service
// to Rejected; transport errors leave the state unchanged.
func (a *Auth) Verify(ctx context.Context) (*client.Account, error) {
	acct, err := a.api.Me(ctx)
	switch {
	case err == nil:
		a.set(SignedIn, acct)
		return acct, nil
	case errors.Is(err, client.ErrAPIRejected):
		a.set(Rejected, nil)
	}
	return nil, err
}

// SignOut forgets the account.
func (a *Auth) SignOut() { a.set(SignedOut, nil) }

func (a *Auth) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Auth) Account() *client.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account
}

func (a *Auth) Subscribe() (<-chan AuthChange, func()) {
	return a.b.subscribe()
}

func (a *Auth) Close() { a.b.close() }

func (a *Auth) set(state AuthState, acct *client.Account) {
	a.mu.Lock()
	changed := a.state != state || a.account != acct
	a.state = state
	a.account = acct
	a.mu.Unlock()

	if changed {
		a.b.publish(AuthChange{State: state, Account: acct})
	}
}

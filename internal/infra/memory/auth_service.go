package memory

import (
	"context"
	"fmt"
	"log"
	"sync"

	"campus-sync-service/internal/domain"
)

// Registry holds the known accounts, shared across auth sessions (one per
// gateway connection).
type Registry struct {
	mu     sync.Mutex
	users  map[string]*account
	nextID int
}

type account struct {
	id     string
	email  string
	secret string
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*account)}
}

// AddUser seeds an account and returns its identity.
func (r *Registry) AddUser(email, secret string) domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[email]; ok {
		existing.secret = secret
		return domain.Identity{ID: existing.id, Email: email}
	}
	r.nextID++
	acct := &account{id: fmt.Sprintf("user-%d", r.nextID), email: email, secret: secret}
	r.users[email] = acct
	return domain.Identity{ID: acct.id, Email: email}
}

func (r *Registry) authenticate(email, secret string) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.users[email]
	if !ok || acct.secret != secret {
		return domain.Identity{}, domain.ErrAuthFailed
	}
	return domain.Identity{ID: acct.id, Email: email}, nil
}

func (r *Registry) register(email, secret string) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[email]; ok {
		return domain.Identity{}, fmt.Errorf("%w: account exists", domain.ErrAuthFailed)
	}
	r.nextID++
	acct := &account{id: fmt.Sprintf("user-%d", r.nextID), email: email, secret: secret}
	r.users[email] = acct
	return domain.Identity{ID: acct.id, Email: email}, nil
}

// AuthService implements app.AuthService against a Registry. Each instance
// tracks one signed-in identity and notifies its listeners on every
// transition.
type AuthService struct {
	registry *Registry

	mu           sync.Mutex
	current      *domain.Identity
	listeners    map[int]func(*domain.Identity)
	nextListener int
}

func NewAuthService(registry *Registry) *AuthService {
	return &AuthService{
		registry:  registry,
		listeners: make(map[int]func(*domain.Identity)),
	}
}

func (a *AuthService) SignIn(_ context.Context, email, secret string) (domain.Identity, error) {
	identity, err := a.registry.authenticate(email, secret)
	if err != nil {
		return domain.Identity{}, err
	}
	a.setCurrent(&identity)
	return identity, nil
}

func (a *AuthService) Register(_ context.Context, email, secret string) (domain.Identity, error) {
	identity, err := a.registry.register(email, secret)
	if err != nil {
		return domain.Identity{}, err
	}
	a.setCurrent(&identity)
	return identity, nil
}

func (a *AuthService) SignOut(context.Context) error {
	a.setCurrent(nil)
	return nil
}

func (a *AuthService) SendPasswordReset(_ context.Context, email string) error {
	// No mail transport locally; the reset link would go out here.
	log.Printf("password reset requested for %s", email)
	return nil
}

func (a *AuthService) OnIdentityChange(fn func(*domain.Identity)) func() {
	a.mu.Lock()
	a.nextListener++
	id := a.nextListener
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *AuthService) setCurrent(identity *domain.Identity) {
	a.mu.Lock()
	a.current = identity
	fns := make([]func(*domain.Identity), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(identity)
	}
}

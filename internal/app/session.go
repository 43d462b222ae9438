package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"campus-sync-service/internal/domain"
)

// Session is the single owned context for one signed-in user: current
// identity, resolved capabilities, and the synchronizer's mappings. Every
// identity transition resets it; there is no ambient global state.
type Session struct {
	auth   AuthService
	store  DocumentStore
	blobs  BlobStore
	notify Notifier
	router *Router
	sync   *Synchronizer

	cancelAuth func()
	now        func() time.Time

	mu       sync.RWMutex
	identity *domain.Identity
	caps     Capabilities
}

// NewSession wires the session to its collaborators and registers for
// identity changes, which are the sole trigger for (re)subscription.
func NewSession(auth AuthService, store DocumentStore, blobs BlobStore, notify Notifier, render Renderer) *Session {
	if notify == nil {
		notify = nopNotifier
	}
	router := NewRouter(render)
	s := &Session{
		auth:   auth,
		store:  store,
		blobs:  blobs,
		notify: notify,
		router: router,
		now:    time.Now,
	}
	s.sync = NewSynchronizer(store, notify, router.OnCollectionChanged)
	s.cancelAuth = auth.OnIdentityChange(s.handleIdentity)
	return s
}

// Close unregisters from the auth service and releases all subscriptions.
func (s *Session) Close() {
	if s.cancelAuth != nil {
		s.cancelAuth()
	}
	s.sync.Reset()
}

// handleIdentity runs on every identity transition. Teardown is unconditional
// and happens before anything else, so a resolver failure can never leak the
// previous identity's subscriptions into the new session.
func (s *Session) handleIdentity(identity *domain.Identity) {
	s.sync.Reset()

	s.mu.Lock()
	s.identity = identity
	s.caps = Capabilities{Role: domain.RoleStudent}
	s.mu.Unlock()

	if identity == nil {
		return
	}

	ctx := context.Background()
	caps := ResolveCapabilities(ctx, s.roleLookup, *identity)

	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()

	s.ensureProfile(ctx, *identity, caps.Role)
	s.sync.Start(ctx, *identity)
}

func (s *Session) roleLookup(ctx context.Context, id string) (domain.RoleRecord, error) {
	rec, err := s.store.Get(ctx, domain.ColRoles, id)
	if err != nil {
		return domain.RoleRecord{}, err
	}
	var role domain.RoleRecord
	if err := json.Unmarshal(rec.Data, &role); err != nil {
		return domain.RoleRecord{}, err
	}
	role.ID = rec.ID
	return role, nil
}

// ensureProfile creates the profile lazily on first sign-in and keeps its
// role field mirroring the last resolution.
func (s *Session) ensureProfile(ctx context.Context, identity domain.Identity, role domain.Role) {
	rec, err := s.store.Get(ctx, domain.ColProfiles, identity.ID)
	if errors.Is(err, domain.ErrNotFound) {
		profile := domain.Profile{
			ID:   identity.ID,
			Name: displayName(identity.Email),
			Role: string(role),
		}
		if err := s.store.Set(ctx, domain.ColProfiles, identity.ID, profile, false); err != nil {
			log.Printf("profile create for %s failed: %v", identity.ID, err)
		}
		return
	}
	if err != nil {
		log.Printf("profile read for %s failed: %v", identity.ID, err)
		return
	}

	var profile domain.Profile
	if err := json.Unmarshal(rec.Data, &profile); err != nil {
		log.Printf("profile decode for %s failed: %v", identity.ID, err)
		return
	}
	if profile.Role != string(role) {
		if err := s.store.Set(ctx, domain.ColProfiles, identity.ID, map[string]any{"role": string(role)}, true); err != nil {
			log.Printf("profile role refresh for %s failed: %v", identity.ID, err)
		}
	}
}

func displayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// SignIn delegates to the auth collaborator; the resulting identity change
// callback drives resubscription. Failure leaves session state unchanged.
func (s *Session) SignIn(ctx context.Context, email, secret string) error {
	if _, err := s.auth.SignIn(ctx, email, secret); err != nil {
		s.notify("error", "sign-in failed")
		return err
	}
	return nil
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, email, secret string) error {
	identity, err := s.auth.Register(ctx, email, secret)
	if err != nil {
		s.notify("error", "registration failed")
		return err
	}
	// Role records are created at registration; absent one the resolver
	// falls back to student anyway.
	role := domain.RoleRecord{ID: identity.ID, Role: string(domain.RoleStudent)}
	if err := s.store.Set(ctx, domain.ColRoles, identity.ID, role, false); err != nil {
		log.Printf("role record create for %s failed: %v", identity.ID, err)
	}
	return nil
}

// SignOut releases every subscription before the next identity can attach.
func (s *Session) SignOut(ctx context.Context) error {
	return s.auth.SignOut(ctx)
}

// SendPasswordReset asks the auth collaborator to mail a reset link.
func (s *Session) SendPasswordReset(ctx context.Context, email string) error {
	if err := s.auth.SendPasswordReset(ctx, email); err != nil {
		s.notify("error", "password reset failed")
		return err
	}
	s.notify("info", "password reset email sent")
	return nil
}

// Identity returns the signed-in identity, or nil.
func (s *Session) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Capabilities returns the permission set frozen at last resolution.
func (s *Session) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// IsEnrolledIn checks the derived enrollment set for the active identity.
func (s *Session) IsEnrolledIn(courseID string) bool {
	return s.sync.IsEnrolled(courseID)
}

// Sync exposes the synchronizer for read access to mappings.
func (s *Session) Sync() *Synchronizer { return s.sync }

// Router exposes the view invalidation router.
func (s *Session) Router() *Router { return s.router }

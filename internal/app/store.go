package app

import (
	"context"
	"encoding/json"

	"campus-sync-service/internal/domain"
)

// Record is one document as delivered by the store: its assigned ID plus the
// raw payload. Collections decode the payload into their own types.
type Record struct {
	ID   string
	Data json.RawMessage
}

// Filter is an optional equality constraint on a single top-level field.
type Filter struct {
	Field string
	Value string
}

// Subscription is a live query handle. Stop releases it; stopping twice is safe.
type Subscription interface {
	Stop()
}

// SnapshotFunc receives the complete current result set for a subscribed
// query. Delivery is full-replace: the slice is the entire matching set, never
// a partial diff. A non-nil err signals a subscription failure; records are
// nil in that case.
type SnapshotFunc func(records []Record, err error)

// DocumentStore abstracts the remote document database with real-time change
// feeds (memory or Redis implementations under internal/infra).
type DocumentStore interface {
	Subscribe(ctx context.Context, collection string, filter *Filter, fn SnapshotFunc) (Subscription, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Add(ctx context.Context, collection string, doc any) (string, error)
	Set(ctx context.Context, collection, id string, doc any, merge bool) error
	Delete(ctx context.Context, collection, id string) error
}

// AuthService is the external authentication collaborator. Identity changes
// announced through OnIdentityChange are the sole trigger for (re)subscribing
// collections.
type AuthService interface {
	SignIn(ctx context.Context, email, secret string) (domain.Identity, error)
	Register(ctx context.Context, email, secret string) (domain.Identity, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// OnIdentityChange registers fn for identity transitions; nil identity
	// means signed out. The returned func unregisters it.
	OnIdentityChange(fn func(identity *domain.Identity)) (cancel func())
}

// BlobStore uploads avatar/signature assets and returns a download URL. The
// core only records the URL string.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
}

// Notifier surfaces transient, non-blocking notices to the user. Level is
// "info" or "error". Notices never abort the session.
type Notifier func(level, message string)

func nopNotifier(string, string) {}

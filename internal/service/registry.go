package service

import (
	"fmt"
	"time"

	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"
	"deskbridge/pkg/helpdesk/freshchat"
	"deskbridge/pkg/helpdesk/zendesk"
)

// ClientConstructor builds a platform adapter bound to one tenant's
// credentials.
type ClientConstructor func(creds models.CredentialBundle, timeout time.Duration) (helpdesk.Client, error)

// Registry maps platform kinds to adapter constructors. The set is closed
// and populated once at startup; an unknown kind is a config error, never a
// dynamic lookup.
type Registry struct {
	constructors map[models.PlatformKind]ClientConstructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[models.PlatformKind]ClientConstructor)}
}

// DefaultRegistry returns the registry with both supported platforms wired.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.PlatformFreshchat, func(creds models.CredentialBundle, timeout time.Duration) (helpdesk.Client, error) {
		return freshchat.NewClient(creds, timeout)
	})
	r.Register(models.PlatformZendesk, func(creds models.CredentialBundle, timeout time.Duration) (helpdesk.Client, error) {
		return zendesk.NewClient(creds, timeout)
	})
	return r
}

func (r *Registry) Register(kind models.PlatformKind, ctor ClientConstructor) {
	r.constructors[kind] = ctor
}

func (r *Registry) Lookup(kind models.PlatformKind) (ClientConstructor, error) {
	ctor, ok := r.constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported platform kind: %s", kind)
	}
	return ctor, nil
}

// Kinds lists the registered platform kinds, for the health endpoint.
func (r *Registry) Kinds() []models.PlatformKind {
	kinds := make([]models.PlatformKind, 0, len(r.constructors))
	for k := range r.constructors {
		kinds = append(kinds, k)
	}
	return kinds
}

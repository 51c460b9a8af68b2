package service

import (
	"context"
	"time"

	"deskbridge/internal/cache"
	"deskbridge/internal/errors"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"

	"github.com/sirupsen/logrus"
)

// TenantResolver loads tenant platform bindings. The sqlite store implements
// it; tests substitute fakes.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, tenantID string) (*models.TenantContext, error)
}

// AdapterFactory hands out per-tenant helpdesk adapters. Constructed adapters
// are cached for a short TTL so credential rotations take effect within
// minutes without a per-message resolver hit. Concurrent misses for the same
// tenant may both construct; the last writer wins, which is harmless because
// adapters are stateless beyond their credentials.
type AdapterFactory struct {
	resolver TenantResolver
	registry *Registry
	cache    *cache.Cache[string, helpdesk.Client]
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewAdapterFactory(resolver TenantResolver, registry *Registry, ttl time.Duration, maxEntries int, timeout time.Duration, logger *logrus.Logger) *AdapterFactory {
	return &AdapterFactory{
		resolver: resolver,
		registry: registry,
		cache:    cache.New[string, helpdesk.Client](ttl, maxEntries),
		timeout:  timeout,
		logger:   logger,
	}
}

// GetAdapter returns the adapter for a tenant, constructing and caching it on
// a miss. Unknown tenants, inactive tenants, and bad credentials all surface
// as config errors so the router aborts instead of retrying.
func (f *AdapterFactory) GetAdapter(ctx context.Context, tenantID string) (helpdesk.Client, error) {
	if client, ok := f.cache.Get(tenantID); ok {
		return client, nil
	}

	tenant, err := f.resolver.ResolveTenant(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "failed to resolve tenant").
			WithContext("tenant_id", tenantID)
	}
	if tenant == nil {
		return nil, errors.NewConfigError(tenantID, "unknown tenant")
	}
	if !tenant.Active {
		return nil, errors.NewConfigError(tenantID, "tenant is deactivated")
	}
	if !models.ValidPlatform(tenant.Platform) {
		return nil, errors.NewConfigError(tenantID, "unsupported platform: "+string(tenant.Platform))
	}

	ctor, err := f.registry.Lookup(tenant.Platform)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "platform not registered").
			WithContext("tenant_id", tenantID)
	}

	client, err := ctor(tenant.Credentials, f.timeout)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, "failed to construct adapter").
			WithContext("tenant_id", tenantID).
			WithContext("platform", string(tenant.Platform))
	}

	f.cache.Set(tenantID, client)
	f.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"platform":  tenant.Platform,
	}).Debug("Constructed helpdesk adapter")

	return client, nil
}

// Invalidate drops a tenant's cached adapter, forcing reconstruction on the
// next message. Called after credential updates and deactivations.
func (f *AdapterFactory) Invalidate(tenantID string) {
	f.cache.Delete(tenantID)
}

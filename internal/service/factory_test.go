package service

import (
	"context"
	"testing"
	"time"

	"deskbridge/internal/errors"
	"deskbridge/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTenant(id string, platform models.PlatformKind) *models.TenantContext {
	return &models.TenantContext{
		TenantID: id,
		Platform: platform,
		Credentials: models.CredentialBundle{
			APIKey:    "key-123",
			APIURL:    "https://api.example.com",
			Subdomain: "acme",
			Email:     "agent@acme.example.com",
			APIToken:  "tok-123",
		},
		Active: true,
	}
}

func TestAdapterFactoryCachesPerTenant(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	resolver := newMockResolver(testTenant("tenant-a", models.PlatformFreshchat))
	factory := NewAdapterFactory(resolver, DefaultRegistry(), 10*time.Minute, 100, 5*time.Second, logger)

	first, err := factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, resolver.resolveN)

	second, err := factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, resolver.resolveN, "cache hit must not re-resolve")
}

func TestAdapterFactoryTTLExpiryReResolves(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	resolver := newMockResolver(testTenant("tenant-a", models.PlatformFreshchat))
	factory := NewAdapterFactory(resolver, DefaultRegistry(), time.Nanosecond, 100, 5*time.Second, logger)

	_, err := factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.resolveN, "expired entry triggers exactly one re-resolution")
}

func TestAdapterFactoryInvalidateForcesReconstruction(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	resolver := newMockResolver(testTenant("tenant-a", models.PlatformZendesk))
	factory := NewAdapterFactory(resolver, DefaultRegistry(), 10*time.Minute, 100, 5*time.Second, logger)

	_, err := factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)

	factory.Invalidate("tenant-a")
	_, err = factory.GetAdapter(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.resolveN)
}

func TestAdapterFactoryConfigErrors(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	inactive := testTenant("tenant-off", models.PlatformFreshchat)
	inactive.Active = false
	badPlatform := testTenant("tenant-bad", "intercom")

	tests := []struct {
		name     string
		tenantID string
		contains string
	}{
		{name: "unknown tenant", tenantID: "tenant-missing", contains: "unknown tenant"},
		{name: "deactivated tenant", tenantID: "tenant-off", contains: "deactivated"},
		{name: "unsupported platform", tenantID: "tenant-bad", contains: "unsupported platform"},
	}

	resolver := newMockResolver(inactive, badPlatform)
	factory := NewAdapterFactory(resolver, DefaultRegistry(), 10*time.Minute, 100, 5*time.Second, logger)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := factory.GetAdapter(context.Background(), tt.tenantID)
			require.Error(t, err)
			assert.Nil(t, client)
			assert.True(t, errors.IsKind(err, errors.KindConfig))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestAdapterFactoryMissingCredentials(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	tenant := testTenant("tenant-a", models.PlatformFreshchat)
	tenant.Credentials.APIKey = ""
	resolver := newMockResolver(tenant)
	factory := NewAdapterFactory(resolver, DefaultRegistry(), 10*time.Minute, 100, 5*time.Second, logger)

	_, err := factory.GetAdapter(context.Background(), "tenant-a")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestAgentDirectoryCachesLookups(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	adapter := &mockHelpdeskClient{agentInfo: &models.AgentInfo{ID: "agent-1", Name: "Dana Reyes"}}
	dir := NewAgentDirectory(30*time.Minute, 100, logger)

	info, err := dir.Lookup(context.Background(), "tenant-a", "agent-1", adapter)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Dana Reyes", info.Name)
	assert.Equal(t, 1, adapter.agentN)

	_, err = dir.Lookup(context.Background(), "tenant-a", "agent-1", adapter)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.agentN, "cached agent must not hit the platform again")

	// Different tenants never share cache entries even for the same agent id.
	_, err = dir.Lookup(context.Background(), "tenant-b", "agent-1", adapter)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.agentN)
}

func TestAgentDirectoryEmptyAgentID(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	adapter := &mockHelpdeskClient{}
	dir := NewAgentDirectory(30*time.Minute, 100, logger)

	info, err := dir.Lookup(context.Background(), "tenant-a", "", adapter)
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, 0, adapter.agentN)
}

package service

import (
	"context"
	"time"

	"deskbridge/internal/cache"
	"deskbridge/internal/models"
	"deskbridge/pkg/helpdesk"

	"github.com/sirupsen/logrus"
)

type agentKey struct {
	tenantID string
	agentID  string
}

// AgentDirectory is a read-through cache over the adapters' agent lookups.
// Agent metadata changes slowly, so entries live for a long TTL and are never
// write-invalidated; a stale display name for a few minutes is acceptable.
type AgentDirectory struct {
	cache  *cache.Cache[agentKey, *models.AgentInfo]
	logger *logrus.Logger
}

func NewAgentDirectory(ttl time.Duration, maxEntries int, logger *logrus.Logger) *AgentDirectory {
	return &AgentDirectory{
		cache:  cache.New[agentKey, *models.AgentInfo](ttl, maxEntries),
		logger: logger,
	}
}

// Lookup resolves agent metadata through the cache. A lookup failure is not
// fatal to message routing: callers fall back to an unprefixed message.
func (d *AgentDirectory) Lookup(ctx context.Context, tenantID, agentID string, client helpdesk.Client) (*models.AgentInfo, error) {
	if agentID == "" {
		return nil, nil
	}

	key := agentKey{tenantID: tenantID, agentID: agentID}
	if info, ok := d.cache.Get(key); ok {
		return info, nil
	}

	info, err := client.ResolveAgentInfo(ctx, agentID)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"agent_id":  agentID,
		}).WithError(err).Warn("Failed to resolve agent info")
		return nil, err
	}

	d.cache.Set(key, info)
	return info, nil
}

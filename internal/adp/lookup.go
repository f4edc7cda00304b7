package adp

import (
	"context"

	"github.com/fbromtl/gouvernance-sub001/internal/authz"
	"github.com/fbromtl/gouvernance-sub001/internal/credential"
)

// agentLookup adapts the credential registry to the authorization engine.
type agentLookup struct {
	agents *credential.Store
}

func (l agentLookup) Profile(ctx context.Context, organizationID, agentID string) (authz.AgentProfile, error) {
	a, err := l.agents.Get(ctx, organizationID, agentID)
	if err != nil {
		return authz.AgentProfile{}, err
	}
	return authz.AgentProfile{
		AgentID:       a.AgentID,
		AutonomyLevel: a.AutonomyLevel,
		Active:        a.Status == credential.StatusActive,
	}, nil
}

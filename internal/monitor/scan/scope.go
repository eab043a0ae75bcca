package scan

import (
	"context"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// ScopeResolver materializes the set of instances a policy applies to.
type ScopeResolver struct {
	instances InstanceStore
}

func NewScopeResolver(instances InstanceStore) *ScopeResolver {
	return &ScopeResolver{instances: instances}
}

// Resolve returns instance id -> name for the policy's scope. A nil map
// means the policy is unconstrained (no source configured); a non-nil
// empty map means the source resolved to nothing.
func (r *ScopeResolver) Resolve(ctx context.Context, p *model.Policy) (map[string]string, error) {
	if p.Source == nil {
		return nil, nil
	}

	var ids []string
	switch p.Source.Type {
	case model.SourceTypeInstance:
		ids = p.Source.Values
	case model.SourceTypeOrganization:
		orgIDs, err := r.instances.InstanceIDsByOrganizations(ctx, p.MonitorObjectID, p.Source.Values)
		if err != nil {
			return nil, err
		}
		ids = orgIDs
	default:
		return map[string]string{}, nil
	}

	scope, err := r.instances.InstancesByIDs(ctx, p.MonitorObjectID, ids)
	if err != nil {
		return nil, err
	}
	return scope, nil
}

package rbac

import "github.com/google/uuid"

// Condition keys understood by the matcher. Any other key fails the match.
const (
	ConditionOwner        = "owner"
	ConditionProjectOwner = "project_owner"
	ConditionEnvironment  = "environment"

	// ConditionSelf is the value binding an ownership condition to the actor.
	ConditionSelf = "self"
)

// Matches reports whether a held permission satisfies a required one under
// the given context. Resource and action must be equal; every condition on
// the required permission must evaluate true. Unrecognised condition keys
// fail closed.
func (p Permission) Matches(required Permission, ctx PermissionContext) bool {
	if p.Resource != required.Resource || p.Action != required.Action {
		return false
	}
	return evaluateConditions(required.Conditions, ctx)
}

func evaluateConditions(conditions map[string]string, ctx PermissionContext) bool {
	for key, value := range conditions {
		switch key {
		case ConditionOwner:
			if value == ConditionSelf && !isActor(ctx.ResourceOwnerID, ctx.ActorID) {
				return false
			}
		case ConditionProjectOwner:
			if value == ConditionSelf && !isActor(ctx.ProjectOwnerID, ctx.ActorID) {
				return false
			}
		case ConditionEnvironment:
			if ctx.Environment != value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// isActor requires the ownership fact to be present; an unknown owner never
// satisfies a self condition.
func isActor(owner, actor uuid.UUID) bool {
	return owner != uuid.Nil && owner == actor
}

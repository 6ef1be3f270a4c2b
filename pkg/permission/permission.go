// Package permission decides whether an identity may exercise a
// workflow transition. Authorization is deliberately separate from
// business-rule gating: the resolver never consults the condition
// evaluator.
package permission

import "github.com/docflow/docflow/pkg/models"

// Resolver answers role-based transition checks. Pure query, no side
// effects, safe for concurrent use.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// CanExecute reports whether identity may execute the transition on
// the record. True iff the identity holds the transition's allowed
// role, or the transition permits self-approval and the identity
// created the record. An empty or "All" allowed role admits anyone.
func (r *Resolver) CanExecute(transition *models.Transition, record *models.Record, identity models.Identity) bool {
	if transition == nil {
		return false
	}

	if transition.AllowedRole == "" || transition.AllowedRole == models.RoleAll {
		return true
	}

	if identity.HasRole(transition.AllowedRole) {
		return true
	}

	return transition.AllowSelfApproval && identity.IsCreator(record)
}

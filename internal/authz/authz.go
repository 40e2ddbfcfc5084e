// Package authz answers the question "may this user enter this project" by
// walking the resource graph: a user belongs to groups, groups grant
// projects. Membership in any granting group is sufficient.
package authz

import (
	"context"
	"errors"

	"tregate/internal/graph"
	"tregate/pkg/logging"

	identityv1alpha1 "tregate/pkg/apis/identity/v1alpha1"
)

// Graph is the slice of the resource graph authorization needs.
type Graph interface {
	GetUser(ctx context.Context, name string) (*identityv1alpha1.User, error)
	GetGroup(ctx context.Context, name string) (*identityv1alpha1.Group, error)
}

// Authorizer decides project access from the resource graph. Every failure
// mode denies: a missing user, a missing group, or an unreachable graph all
// read as "not authorized".
type Authorizer struct {
	graph Graph
}

// New creates an authorizer over the given graph.
func New(g Graph) *Authorizer {
	return &Authorizer{graph: g}
}

// Authorized reports whether username may access project. Graph failures are
// logged and deny; they are never surfaced as errors, because the decision
// endpoint answers with a status code either way.
func (a *Authorizer) Authorized(ctx context.Context, username, project string) bool {
	if username == "" || project == "" {
		return false
	}

	user, err := a.graph.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			logging.Info("Authz", "Denying %q: no user record", username)
		} else {
			logging.Error("Authz", err, "Denying %q: graph unavailable", username)
		}
		return false
	}

	for _, groupName := range user.Spec.Groups {
		group, err := a.graph.GetGroup(ctx, groupName)
		if err != nil {
			// A dangling group reference grants nothing; keep walking the
			// remaining memberships.
			if !errors.Is(err, graph.ErrNotFound) {
				logging.Error("Authz", err, "Skipping group %q: graph unavailable", groupName)
			}
			continue
		}
		for _, granted := range group.Spec.Projects {
			if granted == project {
				return true
			}
		}
	}

	logging.Info("Authz", "Denying %q: no group grants project %q", username, project)
	return false
}

// Projects returns every project the user's groups grant, deduplicated, in
// graph walk order. An unknown user has no projects.
func (a *Authorizer) Projects(ctx context.Context, username string) []string {
	user, err := a.graph.GetUser(ctx, username)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	var projects []string
	for _, groupName := range user.Spec.Groups {
		group, err := a.graph.GetGroup(ctx, groupName)
		if err != nil {
			continue
		}
		for _, p := range group.Spec.Projects {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			projects = append(projects, p)
		}
	}
	return projects
}

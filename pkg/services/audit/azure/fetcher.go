package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"
)

// RoleAssignment is one subscription-scope role assignment with its
// unresolved role definition id.
type RoleAssignment struct {
	PrincipalID      string
	RoleDefinitionID string
	Scope            string
}

// Fetcher exposes the directory and authorization listings the evaluator
// rules need.
type Fetcher interface {
	ListUsers(ctx context.Context) ([]GraphUser, error)
	ListServicePrincipals(ctx context.Context) ([]GraphServicePrincipal, error)
	ListRoleAssignments(ctx context.Context) ([]RoleAssignment, error)
	ResolveRoleName(ctx context.Context, roleDefinitionID string) (string, error)
}

type armFetcher struct {
	graph          *GraphClient
	assignments    *armauthorization.RoleAssignmentsClient
	definitions    *armauthorization.RoleDefinitionsClient
	subscriptionID string
}

func NewFetcher(cfg *Config) (Fetcher, error) {
	clientFactory, err := armauthorization.NewClientFactory(cfg.SubscriptionID, cfg.Credentials, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization client factory: %w", err)
	}

	return &armFetcher{
		graph:          NewGraphClient(cfg.Credentials),
		assignments:    clientFactory.NewRoleAssignmentsClient(),
		definitions:    clientFactory.NewRoleDefinitionsClient(),
		subscriptionID: cfg.SubscriptionID,
	}, nil
}

func (f *armFetcher) ListUsers(ctx context.Context) ([]GraphUser, error) {
	return f.graph.ListUsers(ctx)
}

func (f *armFetcher) ListServicePrincipals(ctx context.Context) ([]GraphServicePrincipal, error) {
	return f.graph.ListServicePrincipals(ctx)
}

func (f *armFetcher) ListRoleAssignments(ctx context.Context) ([]RoleAssignment, error) {
	scope := "/subscriptions/" + f.subscriptionID

	var assignments []RoleAssignment
	pager := f.assignments.NewListForScopePager(scope, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list role assignments for %s: %w", scope, err)
		}
		for _, assignment := range page.Value {
			if assignment.Properties == nil {
				continue
			}
			assignments = append(assignments, RoleAssignment{
				PrincipalID:      deref(assignment.Properties.PrincipalID),
				RoleDefinitionID: deref(assignment.Properties.RoleDefinitionID),
				Scope:            deref(assignment.Properties.Scope),
			})
		}
	}
	return assignments, nil
}

func (f *armFetcher) ResolveRoleName(ctx context.Context, roleDefinitionID string) (string, error) {
	resp, err := f.definitions.GetByID(ctx, roleDefinitionID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to resolve role definition %s: %w", roleDefinitionID, err)
	}
	if resp.Properties == nil || resp.Properties.RoleName == nil {
		return "", fmt.Errorf("role definition %s has no role name", roleDefinitionID)
	}
	return *resp.Properties.RoleName, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

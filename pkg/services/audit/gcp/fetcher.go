package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iam/v1"
)

// Fetcher exposes the project-level IAM listings the evaluator rules need.
type Fetcher interface {
	GetIAMPolicyBindings(ctx context.Context) ([]*cloudresourcemanager.Binding, error)
	ListCustomRoles(ctx context.Context) ([]*iam.Role, error)
	ListServiceAccounts(ctx context.Context) ([]*iam.ServiceAccount, error)
	ListServiceAccountKeys(ctx context.Context, accountName string) ([]*iam.ServiceAccountKey, error)
}

type apiFetcher struct {
	iam       *iam.Service
	crm       *cloudresourcemanager.Service
	projectID string
}

func NewFetcher(iamService *iam.Service, crmService *cloudresourcemanager.Service, projectID string) Fetcher {
	return &apiFetcher{
		iam:       iamService,
		crm:       crmService,
		projectID: projectID,
	}
}

func (f *apiFetcher) GetIAMPolicyBindings(ctx context.Context) ([]*cloudresourcemanager.Binding, error) {
	policy, err := f.crm.Projects.GetIamPolicy(f.projectID, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get IAM policy for project %s: %w", f.projectID, err)
	}
	return policy.Bindings, nil
}

func (f *apiFetcher) ListCustomRoles(ctx context.Context) ([]*iam.Role, error) {
	var roles []*iam.Role
	call := f.iam.Projects.Roles.List("projects/" + f.projectID)
	err := call.Pages(ctx, func(page *iam.ListRolesResponse) error {
		roles = append(roles, page.Roles...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list custom roles for project %s: %w", f.projectID, err)
	}
	return roles, nil
}

func (f *apiFetcher) ListServiceAccounts(ctx context.Context) ([]*iam.ServiceAccount, error) {
	var accounts []*iam.ServiceAccount
	call := f.iam.Projects.ServiceAccounts.List("projects/" + f.projectID)
	err := call.Pages(ctx, func(page *iam.ListServiceAccountsResponse) error {
		accounts = append(accounts, page.Accounts...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list service accounts for project %s: %w", f.projectID, err)
	}
	return accounts, nil
}

func (f *apiFetcher) ListServiceAccountKeys(ctx context.Context, accountName string) ([]*iam.ServiceAccountKey, error) {
	resp, err := f.iam.Projects.ServiceAccounts.Keys.List(accountName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for service account %s: %w", accountName, err)
	}
	return resp.Keys, nil
}

package aws

import (
	"context"
	"fmt"
	"net/url"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// Fetcher exposes the read-only IAM listings the evaluator rules need.
type Fetcher interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	ListAccessKeys(ctx context.Context, userName string) ([]types.AccessKeyMetadata, error)
	ListMFADevices(ctx context.Context, userName string) ([]types.MFADevice, error)
	GetUser(ctx context.Context, userName string) (*types.User, error)
	ListUserPolicies(ctx context.Context, userName string) ([]string, error)
	ListRoles(ctx context.Context) ([]types.Role, error)
	ListAttachedRolePolicies(ctx context.Context, roleName string) ([]types.AttachedPolicy, error)
	// GetPolicyDocument resolves the policy's current default version and
	// returns its decoded JSON document.
	GetPolicyDocument(ctx context.Context, policyArn string) (string, error)
}

type iamFetcher struct {
	client *iam.Client
}

func NewFetcher(cfg awssdk.Config) Fetcher {
	return &iamFetcher{client: iam.NewFromConfig(cfg)}
}

func (f *iamFetcher) ListUsers(ctx context.Context) ([]types.User, error) {
	var users []types.User
	paginator := iam.NewListUsersPaginator(f.client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list IAM users: %w", err)
		}
		users = append(users, page.Users...)
	}
	return users, nil
}

func (f *iamFetcher) ListAccessKeys(ctx context.Context, userName string) ([]types.AccessKeyMetadata, error) {
	resp, err := f.client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: awssdk.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list access keys for user %s: %w", userName, err)
	}
	return resp.AccessKeyMetadata, nil
}

func (f *iamFetcher) ListMFADevices(ctx context.Context, userName string) ([]types.MFADevice, error) {
	resp, err := f.client.ListMFADevices(ctx, &iam.ListMFADevicesInput{
		UserName: awssdk.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list MFA devices for user %s: %w", userName, err)
	}
	return resp.MFADevices, nil
}

func (f *iamFetcher) GetUser(ctx context.Context, userName string) (*types.User, error) {
	resp, err := f.client.GetUser(ctx, &iam.GetUserInput{
		UserName: awssdk.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userName, err)
	}
	return resp.User, nil
}

func (f *iamFetcher) ListUserPolicies(ctx context.Context, userName string) ([]string, error) {
	resp, err := f.client.ListUserPolicies(ctx, &iam.ListUserPoliciesInput{
		UserName: awssdk.String(userName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list inline policies for user %s: %w", userName, err)
	}
	return resp.PolicyNames, nil
}

func (f *iamFetcher) ListRoles(ctx context.Context) ([]types.Role, error) {
	var roles []types.Role
	paginator := iam.NewListRolesPaginator(f.client, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list IAM roles: %w", err)
		}
		roles = append(roles, page.Roles...)
	}
	return roles, nil
}

func (f *iamFetcher) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]types.AttachedPolicy, error) {
	resp, err := f.client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attached policies for role %s: %w", roleName, err)
	}
	return resp.AttachedPolicies, nil
}

func (f *iamFetcher) GetPolicyDocument(ctx context.Context, policyArn string) (string, error) {
	policy, err := f.client.GetPolicy(ctx, &iam.GetPolicyInput{
		PolicyArn: awssdk.String(policyArn),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get policy %s: %w", policyArn, err)
	}

	version, err := f.client.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: awssdk.String(policyArn),
		VersionId: policy.Policy.DefaultVersionId,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get default version of policy %s: %w", policyArn, err)
	}

	// IAM returns the document URL-encoded.
	document, err := url.QueryUnescape(awssdk.ToString(version.PolicyVersion.Document))
	if err != nil {
		return "", fmt.Errorf("failed to decode document of policy %s: %w", policyArn, err)
	}
	return document, nil
}

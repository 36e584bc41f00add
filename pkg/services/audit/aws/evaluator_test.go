package aws

import (
	"context"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/de-tools/iam-atlas/pkg/services/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of Fetcher for testing
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) ListUsers(ctx context.Context) ([]types.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.User), args.Error(1)
}

func (m *MockFetcher) ListAccessKeys(ctx context.Context, userName string) ([]types.AccessKeyMetadata, error) {
	args := m.Called(ctx, userName)
	return args.Get(0).([]types.AccessKeyMetadata), args.Error(1)
}

func (m *MockFetcher) ListMFADevices(ctx context.Context, userName string) ([]types.MFADevice, error) {
	args := m.Called(ctx, userName)
	return args.Get(0).([]types.MFADevice), args.Error(1)
}

func (m *MockFetcher) GetUser(ctx context.Context, userName string) (*types.User, error) {
	args := m.Called(ctx, userName)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFetcher) ListUserPolicies(ctx context.Context, userName string) ([]string, error) {
	args := m.Called(ctx, userName)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFetcher) ListRoles(ctx context.Context) ([]types.Role, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.Role), args.Error(1)
}

func (m *MockFetcher) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]types.AttachedPolicy, error) {
	args := m.Called(ctx, roleName)
	return args.Get(0).([]types.AttachedPolicy), args.Error(1)
}

func (m *MockFetcher) GetPolicyDocument(ctx context.Context, policyArn string) (string, error) {
	args := m.Called(ctx, policyArn)
	return args.String(0), args.Error(1)
}

var evalTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(fetcher Fetcher) *Evaluator {
	e := NewEvaluator(fetcher, audit.DefaultSettings())
	e.now = func() time.Time { return evalTime }
	return e
}

func findByCategory(findings []domain.Finding, category domain.Category) []domain.Finding {
	var res []domain.Finding
	for _, f := range findings {
		if f.Category == category {
			res = append(res, f)
		}
	}
	return res
}

func expectNoRoles(m *MockFetcher) {
	m.On("ListRoles", mock.Anything).Return([]types.Role{}, nil)
}

func expectQuietUser(m *MockFetcher, name string) {
	m.On("ListAccessKeys", mock.Anything, name).Return([]types.AccessKeyMetadata{}, nil)
	m.On("ListMFADevices", mock.Anything, name).Return([]types.MFADevice{{}}, nil)
	recent := evalTime.AddDate(0, 0, -5)
	m.On("GetUser", mock.Anything, name).Return(&types.User{
		UserName:         awssdk.String(name),
		PasswordLastUsed: &recent,
	}, nil)
	m.On("ListUserPolicies", mock.Anything, name).Return([]string{}, nil)
}

func TestEvaluate_AccessKeyAge(t *testing.T) {
	ctx := context.Background()

	t.Run("key older than threshold is flagged with its age", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{
			{UserName: awssdk.String("alice")},
		}, nil)

		created := evalTime.AddDate(0, 0, -120)
		fetcher.On("ListAccessKeys", mock.Anything, "alice").Return([]types.AccessKeyMetadata{
			{AccessKeyId: awssdk.String("AKIAOLD"), CreateDate: &created},
		}, nil)
		fetcher.On("ListMFADevices", mock.Anything, "alice").Return([]types.MFADevice{{}}, nil)
		recent := evalTime.AddDate(0, 0, -1)
		fetcher.On("GetUser", mock.Anything, "alice").Return(&types.User{
			UserName:         awssdk.String("alice"),
			PasswordLastUsed: &recent,
		}, nil)
		fetcher.On("ListUserPolicies", mock.Anything, "alice").Return([]string{}, nil)
		expectNoRoles(fetcher)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		stale := findByCategory(findings, domain.CategoryStaleKey)
		assert.Len(t, stale, 1)
		assert.Equal(t, "alice", stale[0].Subject)
		assert.Equal(t, "AKIAOLD", stale[0].Detail["access_key_id"])
		assert.Equal(t, 120, stale[0].Detail["age_days"])
	})

	t.Run("key aged exactly at the threshold is not flagged", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{
			{UserName: awssdk.String("alice")},
		}, nil)

		boundary := evalTime.AddDate(0, 0, -90)
		fresh := evalTime.AddDate(0, 0, -10)
		fetcher.On("ListAccessKeys", mock.Anything, "alice").Return([]types.AccessKeyMetadata{
			{AccessKeyId: awssdk.String("AKIABOUNDARY"), CreateDate: &boundary},
			{AccessKeyId: awssdk.String("AKIAFRESH"), CreateDate: &fresh},
		}, nil)
		fetcher.On("ListMFADevices", mock.Anything, "alice").Return([]types.MFADevice{{}}, nil)
		recent := evalTime.AddDate(0, 0, -1)
		fetcher.On("GetUser", mock.Anything, "alice").Return(&types.User{
			UserName:         awssdk.String("alice"),
			PasswordLastUsed: &recent,
		}, nil)
		fetcher.On("ListUserPolicies", mock.Anything, "alice").Return([]string{}, nil)
		expectNoRoles(fetcher)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		assert.Empty(t, findByCategory(findings, domain.CategoryStaleKey))
	})
}

func TestEvaluate_MFA(t *testing.T) {
	ctx := context.Background()

	t.Run("user with zero MFA devices is flagged once", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{
			{UserName: awssdk.String("bob")},
		}, nil)
		fetcher.On("ListAccessKeys", mock.Anything, "bob").Return([]types.AccessKeyMetadata{}, nil)
		fetcher.On("ListMFADevices", mock.Anything, "bob").Return([]types.MFADevice{}, nil)
		recent := evalTime.AddDate(0, 0, -1)
		fetcher.On("GetUser", mock.Anything, "bob").Return(&types.User{
			UserName:         awssdk.String("bob"),
			PasswordLastUsed: &recent,
		}, nil)
		fetcher.On("ListUserPolicies", mock.Anything, "bob").Return([]string{}, nil)
		expectNoRoles(fetcher)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		missing := findByCategory(findings, domain.CategoryMissingMFA)
		assert.Len(t, missing, 1)
		assert.Equal(t, "bob", missing[0].Subject)
	})

	t.Run("user with a registered device is not flagged", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{
			{UserName: awssdk.String("alice")},
		}, nil)
		expectQuietUser(fetcher, "alice")
		expectNoRoles(fetcher)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		assert.Empty(t, findByCategory(findings, domain.CategoryMissingMFA))
	})
}

func TestEvaluate_UnusedIdentity(t *testing.T) {
	ctx := context.Background()

	setupUser := func(fetcher *MockFetcher, name string) {
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{
			{UserName: awssdk.String(name)},
		}, nil)
		fetcher.On("ListAccessKeys", mock.Anything, name).Return([]types.AccessKeyMetadata{}, nil)
		fetcher.On("ListMFADevices", mock.Anything, name).Return([]types.MFADevice{{}}, nil)
		fetcher.On("ListUserPolicies", mock.Anything, name).Return([]string{}, nil)
		expectNoRoles(fetcher)
	}

	t.Run("user without password usage is flagged as unused", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupUser(fetcher, "svc-deploy")
		fetcher.On("GetUser", mock.Anything, "svc-deploy").Return(&types.User{
			UserName: awssdk.String("svc-deploy"),
		}, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		unused := findByCategory(findings, domain.CategoryUnusedIdentity)
		assert.Len(t, unused, 1)
		assert.Nil(t, unused[0].Detail["last_used"])
	})

	t.Run("user last seen beyond 90 days is flagged with the timestamp", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupUser(fetcher, "carol")
		lastUsed := evalTime.AddDate(0, 0, -200)
		fetcher.On("GetUser", mock.Anything, "carol").Return(&types.User{
			UserName:         awssdk.String("carol"),
			PasswordLastUsed: &lastUsed,
		}, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		unused := findByCategory(findings, domain.CategoryUnusedIdentity)
		assert.Len(t, unused, 1)
		assert.Equal(t, lastUsed.UTC(), unused[0].Detail["last_used"])
	})

	t.Run("lookup failure falls back to never used instead of failing the scan", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupUser(fetcher, "api-only")
		fetcher.On("GetUser", mock.Anything, "api-only").Return(nil, assert.AnError)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		unused := findByCategory(findings, domain.CategoryUnusedIdentity)
		assert.Len(t, unused, 1)
		assert.Equal(t, "api-only", unused[0].Subject)
		assert.Nil(t, unused[0].Detail["last_used"])
	})
}

func TestEvaluate_InlinePolicies(t *testing.T) {
	ctx := context.Background()
	fetcher := new(MockFetcher)
	fetcher.On("ListUsers", mock.Anything).Return([]types.User{
		{UserName: awssdk.String("dave")},
	}, nil)
	fetcher.On("ListAccessKeys", mock.Anything, "dave").Return([]types.AccessKeyMetadata{}, nil)
	fetcher.On("ListMFADevices", mock.Anything, "dave").Return([]types.MFADevice{{}}, nil)
	recent := evalTime.AddDate(0, 0, -1)
	fetcher.On("GetUser", mock.Anything, "dave").Return(&types.User{
		UserName:         awssdk.String("dave"),
		PasswordLastUsed: &recent,
	}, nil)
	fetcher.On("ListUserPolicies", mock.Anything, "dave").Return([]string{"s3-full", "admin-bypass"}, nil)
	expectNoRoles(fetcher)

	findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

	assert.NoError(t, err)
	inline := findByCategory(findings, domain.CategoryInlinePolicy)
	assert.Len(t, inline, 1)
	assert.Equal(t, []string{"s3-full", "admin-bypass"}, inline[0].Detail["policy_names"])
}

func TestEvaluate_WildcardPolicies(t *testing.T) {
	ctx := context.Background()

	setupRole := func(fetcher *MockFetcher) {
		fetcher.On("ListUsers", mock.Anything).Return([]types.User{}, nil)
		fetcher.On("ListRoles", mock.Anything).Return([]types.Role{
			{RoleName: awssdk.String("app-role")},
		}, nil)
	}

	t.Run("exact wildcard allow statement is flagged", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupRole(fetcher)
		fetcher.On("ListAttachedRolePolicies", mock.Anything, "app-role").Return([]types.AttachedPolicy{
			{PolicyName: awssdk.String("full-access"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/full-access")},
		}, nil)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/full-access").Return(
			`{"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]}`, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		wildcard := findByCategory(findings, domain.CategoryWildcardPolicy)
		assert.Len(t, wildcard, 1)
		assert.Equal(t, "app-role", wildcard[0].Subject)
		assert.Equal(t, "full-access", wildcard[0].Detail["policy_name"])
	})

	t.Run("every matching statement produces its own finding", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupRole(fetcher)
		fetcher.On("ListAttachedRolePolicies", mock.Anything, "app-role").Return([]types.AttachedPolicy{
			{PolicyName: awssdk.String("double-wide"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/double-wide")},
		}, nil)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/double-wide").Return(
			`{"Statement": [
				{"Effect": "Allow", "Action": "*", "Resource": "*"},
				{"Effect": "Allow", "Action": "s3:*", "Resource": "*"},
				{"Effect": "Allow", "Action": "*", "Resource": "*"}
			]}`, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		wildcard := findByCategory(findings, domain.CategoryWildcardPolicy)
		assert.Len(t, wildcard, 2)
		for _, f := range wildcard {
			assert.Equal(t, "app-role", f.Subject)
			assert.Equal(t, "double-wide", f.Detail["policy_name"])
		}
	})

	t.Run("service-scoped wildcard is not flagged", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupRole(fetcher)
		fetcher.On("ListAttachedRolePolicies", mock.Anything, "app-role").Return([]types.AttachedPolicy{
			{PolicyName: awssdk.String("s3-admin"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/s3-admin")},
		}, nil)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/s3-admin").Return(
			`{"Statement": [{"Effect": "Allow", "Action": "s3:*", "Resource": "*"}]}`, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		assert.Empty(t, findByCategory(findings, domain.CategoryWildcardPolicy))
	})

	t.Run("single statement object is evaluated like a one-element list", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupRole(fetcher)
		fetcher.On("ListAttachedRolePolicies", mock.Anything, "app-role").Return([]types.AttachedPolicy{
			{PolicyName: awssdk.String("legacy"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/legacy")},
		}, nil)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/legacy").Return(
			`{"Statement": {"Effect": "Allow", "Action": "*", "Resource": "*"}}`, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		assert.Len(t, findByCategory(findings, domain.CategoryWildcardPolicy), 1)
	})

	t.Run("resolution failure skips the policy but not the rest", func(t *testing.T) {
		fetcher := new(MockFetcher)
		setupRole(fetcher)
		fetcher.On("ListAttachedRolePolicies", mock.Anything, "app-role").Return([]types.AttachedPolicy{
			{PolicyName: awssdk.String("broken"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/broken")},
			{PolicyName: awssdk.String("full-access"), PolicyArn: awssdk.String("arn:aws:iam::123:policy/full-access")},
		}, nil)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/broken").Return("", assert.AnError)
		fetcher.On("GetPolicyDocument", mock.Anything, "arn:aws:iam::123:policy/full-access").Return(
			`{"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]}`, nil)

		findings, err := newTestEvaluator(fetcher).Evaluate(ctx)

		assert.NoError(t, err)
		wildcard := findByCategory(findings, domain.CategoryWildcardPolicy)
		assert.Len(t, wildcard, 1)
		assert.Equal(t, "full-access", wildcard[0].Detail["policy_name"])
		fetcher.AssertExpectations(t)
	})
}

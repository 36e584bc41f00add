package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/de-tools/iam-atlas/pkg/services/audit"
	"github.com/rs/zerolog"
)

// staleIdentityDays is the threshold for flagging a user whose password
// has not been used, independent of the configurable key age threshold.
const staleIdentityDays = 90

// Evaluator scans AWS IAM users, keys, and role policies and produces
// normalized findings.
type Evaluator struct {
	fetcher  Fetcher
	settings audit.Settings
	now      func() time.Time
}

func NewEvaluator(fetcher Fetcher, settings audit.Settings) *Evaluator {
	return &Evaluator{
		fetcher:  fetcher,
		settings: settings,
		now:      time.Now,
	}
}

func (e *Evaluator) Provider() domain.Provider {
	return domain.ProviderAWS
}

func (e *Evaluator) Evaluate(ctx context.Context) ([]domain.Finding, error) {
	now := e.now().UTC()

	var findings []domain.Finding

	users, err := e.fetcher.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		userFindings, err := e.evaluateUser(ctx, now, user.UserName)
		if err != nil {
			return nil, err
		}
		findings = append(findings, userFindings...)
	}

	roleFindings, err := e.evaluateRolePolicies(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, roleFindings...)

	return findings, nil
}

func (e *Evaluator) evaluateUser(ctx context.Context, now time.Time, name *string) ([]domain.Finding, error) {
	userName := awssdk.ToString(name)

	var findings []domain.Finding

	keys, err := e.fetcher.ListAccessKeys(ctx, userName)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if key.CreateDate == nil {
			continue
		}
		ageDays := audit.WholeDays(now, *key.CreateDate)
		if ageDays > e.settings.MaxKeyAgeDays {
			findings = append(findings, domain.Finding{
				Category: domain.CategoryStaleKey,
				Provider: domain.ProviderAWS,
				Subject:  userName,
				Detail: map[string]any{
					"access_key_id": awssdk.ToString(key.AccessKeyId),
					"age_days":      ageDays,
				},
			})
		}
	}

	devices, err := e.fetcher.ListMFADevices(ctx, userName)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		findings = append(findings, domain.Finding{
			Category: domain.CategoryMissingMFA,
			Provider: domain.ProviderAWS,
			Subject:  userName,
		})
	}

	findings = append(findings, e.evaluateUsage(ctx, now, userName)...)

	policyNames, err := e.fetcher.ListUserPolicies(ctx, userName)
	if err != nil {
		return nil, err
	}
	if len(policyNames) > 0 {
		findings = append(findings, domain.Finding{
			Category: domain.CategoryInlinePolicy,
			Provider: domain.ProviderAWS,
			Subject:  userName,
			Detail: map[string]any{
				"policy_names": policyNames,
			},
		})
	}

	return findings, nil
}

// evaluateUsage flags users whose password was never used or last used
// more than staleIdentityDays ago. A lookup failure is treated the same
// as "never used": API-only identities have no login profile, so the
// assumption on failure is that the password is unused.
func (e *Evaluator) evaluateUsage(ctx context.Context, now time.Time, userName string) []domain.Finding {
	user, err := e.fetcher.GetUser(ctx, userName)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("user", userName).
			Msg("failed to look up password usage, assuming never used")
		return []domain.Finding{{
			Category: domain.CategoryUnusedIdentity,
			Provider: domain.ProviderAWS,
			Subject:  userName,
			Detail: map[string]any{
				"last_used": nil,
			},
		}}
	}

	lastUsed := user.PasswordLastUsed
	if lastUsed == nil {
		return []domain.Finding{{
			Category: domain.CategoryUnusedIdentity,
			Provider: domain.ProviderAWS,
			Subject:  userName,
			Detail: map[string]any{
				"last_used": nil,
			},
		}}
	}

	if audit.WholeDays(now, *lastUsed) > staleIdentityDays {
		return []domain.Finding{{
			Category: domain.CategoryUnusedIdentity,
			Provider: domain.ProviderAWS,
			Subject:  userName,
			Detail: map[string]any{
				"last_used": lastUsed.UTC(),
			},
		}}
	}

	return nil
}

func (e *Evaluator) evaluateRolePolicies(ctx context.Context) ([]domain.Finding, error) {
	logger := zerolog.Ctx(ctx)

	roles, err := e.fetcher.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, role := range roles {
		roleName := awssdk.ToString(role.RoleName)

		attached, err := e.fetcher.ListAttachedRolePolicies(ctx, roleName)
		if err != nil {
			return nil, err
		}

		for _, policy := range attached {
			policyArn := awssdk.ToString(policy.PolicyArn)

			document, err := e.fetcher.GetPolicyDocument(ctx, policyArn)
			if err != nil {
				logger.Error().
					Err(err).
					Str("role", roleName).
					Str("policy", awssdk.ToString(policy.PolicyName)).
					Msg("failed to resolve policy document, skipping")
				continue
			}

			matches, err := wildcardStatementCount(document)
			if err != nil {
				logger.Error().
					Err(err).
					Str("role", roleName).
					Str("policy", awssdk.ToString(policy.PolicyName)).
					Msg("failed to parse policy document, skipping")
				continue
			}

			// One finding per matching statement, never collapsed per policy.
			for i := 0; i < matches; i++ {
				findings = append(findings, domain.Finding{
					Category: domain.CategoryWildcardPolicy,
					Provider: domain.ProviderAWS,
					Subject:  roleName,
					Detail: map[string]any{
						"policy_name": awssdk.ToString(policy.PolicyName),
						"policy_arn":  policyArn,
					},
				})
			}
		}
	}

	return findings, nil
}

type policyDocument struct {
	Statement statementList `json:"Statement"`
}

type policyStatement struct {
	Effect   string `json:"Effect"`
	Action   any    `json:"Action"`
	Resource any    `json:"Resource"`
}

// statementList accepts both a JSON array of statements and the single
// statement object form that IAM documents may use.
type statementList []policyStatement

func (s *statementList) UnmarshalJSON(data []byte) error {
	var list []policyStatement
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}

	var single policyStatement
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("statement is neither a list nor an object: %w", err)
	}
	*s = statementList{single}
	return nil
}

// wildcardStatementCount counts the Allow statements with Action "*"
// and Resource "*" in the document. Only the exact wildcard string
// matches; broader patterns such as "s3:*" do not.
func wildcardStatementCount(document string) (int, error) {
	var doc policyDocument
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return 0, err
	}

	count := 0
	for _, stmt := range doc.Statement {
		if stmt.Effect == "Allow" && isExactWildcard(stmt.Action) && isExactWildcard(stmt.Resource) {
			count++
		}
	}
	return count, nil
}

func isExactWildcard(v any) bool {
	s, ok := v.(string)
	return ok && s == "*"
}

package gcp

import (
	"context"
	"strings"
	"time"

	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/de-tools/iam-atlas/pkg/services/audit"
	"github.com/rs/zerolog"
)

// validAfterLayout is the timestamp format of service account key
// validAfterTime fields.
const validAfterLayout = "2006-01-02T15:04:05Z"

// overprivilegedRoles are the primitive and admin roles flagged on any
// policy binding.
var overprivilegedRoles = map[string]bool{
	"roles/owner":  true,
	"roles/editor": true,
	"roles/resourcemanager.organizationAdmin": true,
}

// Evaluator scans a project's IAM policy, custom roles, and service
// account keys and produces normalized findings.
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
	return domain.ProviderGCP
}

func (e *Evaluator) Evaluate(ctx context.Context) ([]domain.Finding, error) {
	now := e.now().UTC()

	var findings []domain.Finding

	bindings, err := e.fetcher.GetIAMPolicyBindings(ctx)
	if err != nil {
		return nil, err
	}
	for _, binding := range bindings {
		if overprivilegedRoles[binding.Role] {
			for _, member := range binding.Members {
				findings = append(findings, domain.Finding{
					Category: domain.CategoryOverprivileged,
					Provider: domain.ProviderGCP,
					Subject:  member,
					Detail: map[string]any{
						"role": binding.Role,
					},
				})
			}
		}

		// Member strings practically never contain wildcards; the check is
		// defensive and expected to rarely fire.
		for _, member := range binding.Members {
			if strings.Contains(member, "*") {
				findings = append(findings, domain.Finding{
					Category: domain.CategoryBroadScope,
					Provider: domain.ProviderGCP,
					Subject:  member,
					Detail: map[string]any{
						"role": binding.Role,
					},
				})
			}
		}
	}

	roles, err := e.fetcher.ListCustomRoles(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		var wildcardPerms []string
		for _, permission := range role.IncludedPermissions {
			if strings.Contains(permission, "*") {
				wildcardPerms = append(wildcardPerms, permission)
			}
		}
		if len(wildcardPerms) > 0 {
			findings = append(findings, domain.Finding{
				Category: domain.CategoryWildcardRole,
				Provider: domain.ProviderGCP,
				Subject:  role.Name,
				Detail: map[string]any{
					"wildcard_permissions": wildcardPerms,
				},
			})
		}
	}

	keyFindings, err := e.evaluateServiceAccountKeys(ctx, now)
	if err != nil {
		return nil, err
	}
	findings = append(findings, keyFindings...)

	return findings, nil
}

func (e *Evaluator) evaluateServiceAccountKeys(ctx context.Context, now time.Time) ([]domain.Finding, error) {
	logger := zerolog.Ctx(ctx)

	accounts, err := e.fetcher.ListServiceAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, account := range accounts {
		keys, err := e.fetcher.ListServiceAccountKeys(ctx, account.Name)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("service_account", account.Email).
				Msg("failed to list service account keys, skipping account")
			continue
		}

		for _, key := range keys {
			created, err := time.Parse(validAfterLayout, key.ValidAfterTime)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("service_account", account.Email).
					Str("key", key.Name).
					Msg("failed to parse key validity start, skipping key")
				continue
			}

			ageDays := audit.WholeDays(now, created)
			if ageDays > e.settings.MaxKeyAgeDays {
				findings = append(findings, domain.Finding{
					Category: domain.CategoryStaleKey,
					Provider: domain.ProviderGCP,
					Subject:  account.Email,
					Detail: map[string]any{
						"service_account": account.Email,
						"key_id":          keyID(key.Name),
						"age_days":        ageDays,
					},
				})
			}
		}
	}
	return findings, nil
}

// keyID extracts the key id from the full resource name
// projects/.../serviceAccounts/.../keys/<id>.
func keyID(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

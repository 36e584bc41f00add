package azure

import (
	"context"
	"time"

	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/de-tools/iam-atlas/pkg/services/audit"
	"github.com/rs/zerolog"
)

const stalePrincipalDays = 90

// highPrivilegeRoles are the role names flagged on subscription-scope
// assignments.
var highPrivilegeRoles = map[string]bool{
	"Owner":       true,
	"Contributor": true,
}

// Evaluator scans Azure directory users, service principals, and role
// assignments and produces normalized findings.
//
// Directory listings alone cannot tell whether a user has MFA enforced;
// that requires a separate Graph call against the authentication methods
// API. Until that is wired in, every non-guest user is recorded under
// mfa_unverified so downstream consumers see the unverified posture
// explicitly. Known limitation.
type Evaluator struct {
	fetcher Fetcher
	now     func() time.Time
}

func NewEvaluator(fetcher Fetcher) *Evaluator {
	return &Evaluator{
		fetcher: fetcher,
		now:     time.Now,
	}
}

func (e *Evaluator) Provider() domain.Provider {
	return domain.ProviderAzure
}

func (e *Evaluator) Evaluate(ctx context.Context) ([]domain.Finding, error) {
	now := e.now().UTC()

	var findings []domain.Finding

	users, err := e.fetcher.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if user.UserType == "Guest" {
			findings = append(findings, domain.Finding{
				Category: domain.CategoryGuestUser,
				Provider: domain.ProviderAzure,
				Subject:  user.PrincipalName,
				Detail: map[string]any{
					"created": user.Created,
				},
			})
			continue
		}
		findings = append(findings, domain.Finding{
			Category: domain.CategoryMFAUnverified,
			Provider: domain.ProviderAzure,
			Subject:  user.PrincipalName,
			Detail: map[string]any{
				"user_type": user.UserType,
			},
		})
	}

	principalFindings, err := e.evaluateServicePrincipals(ctx, now)
	if err != nil {
		return nil, err
	}
	findings = append(findings, principalFindings...)

	assignmentFindings, err := e.evaluateRoleAssignments(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, assignmentFindings...)

	return findings, nil
}

func (e *Evaluator) evaluateServicePrincipals(ctx context.Context, now time.Time) ([]domain.Finding, error) {
	logger := zerolog.Ctx(ctx)

	principals, err := e.fetcher.ListServicePrincipals(ctx)
	if err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, principal := range principals {
		// Principals without a creation timestamp are skipped.
		if principal.Created == "" {
			continue
		}

		created, err := time.Parse(time.RFC3339, principal.Created)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("principal", principal.ID).
				Str("created", principal.Created).
				Msg("failed to parse service principal creation date, skipping")
			continue
		}

		ageDays := audit.WholeDays(now, created)
		if ageDays > stalePrincipalDays {
			findings = append(findings, domain.Finding{
				Category: domain.CategoryStalePrincipal,
				Provider: domain.ProviderAzure,
				Subject:  principal.ID,
				Detail: map[string]any{
					"display_name": principal.DisplayName,
					"age_days":     ageDays,
				},
			})
		}
	}
	return findings, nil
}

func (e *Evaluator) evaluateRoleAssignments(ctx context.Context) ([]domain.Finding, error) {
	logger := zerolog.Ctx(ctx)

	assignments, err := e.fetcher.ListRoleAssignments(ctx)
	if err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, assignment := range assignments {
		roleName, err := e.fetcher.ResolveRoleName(ctx, assignment.RoleDefinitionID)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("role_definition", assignment.RoleDefinitionID).
				Msg("failed to resolve role assignment, skipping")
			continue
		}

		if highPrivilegeRoles[roleName] {
			findings = append(findings, domain.Finding{
				Category: domain.CategoryHighPrivilegeRole,
				Provider: domain.ProviderAzure,
				Subject:  assignment.PrincipalID,
				Detail: map[string]any{
					"role_name": roleName,
					"scope":     assignment.Scope,
				},
			})
		}
	}
	return findings, nil
}

package remediation

import (
	"context"
	"fmt"

	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

// AccessKeyDisabler performs the single mutating remediation action:
// disabling an AWS access key.
type AccessKeyDisabler interface {
	DisableAccessKey(ctx context.Context, userName, accessKeyID string) error
}

// AdvisorySink receives advisory-only remediation records.
type AdvisorySink interface {
	Emit(line string, detail map[string]any)
}

// Dispatcher maps findings to remediation actions. The mutating/advisory
// split is fixed per category: only AWS stale_key findings trigger a
// provider call, every other category is advisory-only. Callers must not
// invoke the dispatcher at all when remediation is disabled.
type Dispatcher struct {
	keys       AccessKeyDisabler
	advisories AdvisorySink
}

func NewDispatcher(keys AccessKeyDisabler, advisories AdvisorySink) *Dispatcher {
	return &Dispatcher{
		keys:       keys,
		advisories: advisories,
	}
}

// Remediate processes every finding in the report, in provider then
// finding order, and returns one outcome per finding. A failed mutating
// action is recorded and does not stop the remaining findings.
func (d *Dispatcher) Remediate(ctx context.Context, report domain.AuditReport) []domain.RemediationOutcome {
	var outcomes []domain.RemediationOutcome
	for _, provider := range domain.Providers() {
		for _, finding := range report.Findings[provider] {
			outcomes = append(outcomes, d.dispatch(ctx, finding))
		}
	}
	return outcomes
}

func (d *Dispatcher) dispatch(ctx context.Context, finding domain.Finding) domain.RemediationOutcome {
	logger := zerolog.Ctx(ctx)

	if finding.Provider == domain.ProviderAWS && finding.Category == domain.CategoryStaleKey {
		keyID, _ := finding.Detail["access_key_id"].(string)
		logger.Info().
			Str("user", finding.Subject).
			Str("access_key_id", keyID).
			Msg("disabling stale access key")

		if err := d.keys.DisableAccessKey(ctx, finding.Subject, keyID); err != nil {
			logger.Error().
				Err(err).
				Str("user", finding.Subject).
				Str("access_key_id", keyID).
				Msg("failed to disable access key")
			return domain.RemediationOutcome{
				Finding: finding,
				Status:  domain.RemediationFailed,
				Err:     err,
			}
		}
		return domain.RemediationOutcome{
			Finding: finding,
			Status:  domain.RemediationApplied,
		}
	}

	d.advisories.Emit(advisoryLine(finding), finding.Detail)
	return domain.RemediationOutcome{
		Finding: finding,
		Status:  domain.RemediationAdvisory,
	}
}

// advisoryLine renders the human-readable review message for a finding.
func advisoryLine(f domain.Finding) string {
	switch f.Category {
	case domain.CategoryStaleKey:
		return fmt.Sprintf("stale credential for %s (manual review)", f.Subject)
	case domain.CategoryMissingMFA:
		return fmt.Sprintf("user %s has no MFA enabled", f.Subject)
	case domain.CategoryUnusedIdentity:
		return fmt.Sprintf("unused user %s, last used: %v", f.Subject, f.Detail["last_used"])
	case domain.CategoryInlinePolicy:
		return fmt.Sprintf("user %s has inline policies: %v (manual review)", f.Subject, f.Detail["policy_names"])
	case domain.CategoryWildcardPolicy:
		return fmt.Sprintf("role %s has wildcard permissions in policy %v (manual review)", f.Subject, f.Detail["policy_name"])
	case domain.CategoryGuestUser:
		return fmt.Sprintf("guest user %s created at %v", f.Subject, f.Detail["created"])
	case domain.CategoryMFAUnverified:
		return fmt.Sprintf("MFA not verified for %s (%v)", f.Subject, f.Detail["user_type"])
	case domain.CategoryStalePrincipal:
		return fmt.Sprintf("stale service principal %s, %v days old", f.Subject, f.Detail["age_days"])
	case domain.CategoryHighPrivilegeRole:
		return fmt.Sprintf("principal %s has role %v on %v", f.Subject, f.Detail["role_name"], f.Detail["scope"])
	case domain.CategoryOverprivileged:
		return fmt.Sprintf("overprivileged: %s has role %v", f.Subject, f.Detail["role"])
	case domain.CategoryBroadScope:
		return fmt.Sprintf("broad scope: %s bound to %v", f.Subject, f.Detail["role"])
	case domain.CategoryWildcardRole:
		return fmt.Sprintf("custom role %s has wildcard permissions: %v", f.Subject, f.Detail["wildcard_permissions"])
	default:
		return fmt.Sprintf("finding %s for %s (manual review)", f.Category, f.Subject)
	}
}

package domain

import "time"

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// Providers lists every supported provider in report order.
func Providers() []Provider {
	return []Provider{ProviderAWS, ProviderAzure, ProviderGCP}
}

// Category is the fixed finding taxonomy. The values double as the
// category keys in the serialized report, so they must not change.
type Category string

const (
	CategoryStaleKey          Category = "stale_key"
	CategoryMissingMFA        Category = "missing_mfa"
	CategoryUnusedIdentity    Category = "unused_identity"
	CategoryInlinePolicy      Category = "inline_policy"
	CategoryWildcardPolicy    Category = "wildcard_policy"
	CategoryGuestUser         Category = "guest_user"
	CategoryMFAUnverified     Category = "mfa_unverified"
	CategoryStalePrincipal    Category = "stale_principal"
	CategoryHighPrivilegeRole Category = "high_privilege_role"
	CategoryOverprivileged    Category = "overprivileged"
	CategoryBroadScope        Category = "broad_scope"
	CategoryWildcardRole      Category = "wildcard_role"
)

// Categories returns the categories a provider's evaluator can emit, in
// the order they appear in the serialized report.
func Categories(p Provider) []Category {
	switch p {
	case ProviderAWS:
		return []Category{
			CategoryStaleKey,
			CategoryMissingMFA,
			CategoryUnusedIdentity,
			CategoryInlinePolicy,
			CategoryWildcardPolicy,
		}
	case ProviderAzure:
		return []Category{
			CategoryGuestUser,
			CategoryMFAUnverified,
			CategoryStalePrincipal,
			CategoryHighPrivilegeRole,
		}
	case ProviderGCP:
		return []Category{
			CategoryOverprivileged,
			CategoryBroadScope,
			CategoryWildcardRole,
			CategoryStaleKey,
		}
	}
	return nil
}

// Finding is one normalized audit observation. Findings are not
// deduplicated within a run; the same (category, provider, subject)
// tuple may appear more than once.
type Finding struct {
	Category Category
	Provider Provider
	// Subject identifies the audited identity or resource: a user name,
	// role name, service principal id, service account email, or binding
	// member.
	Subject string
	// Detail holds category-specific attributes (age_days, role_name, ...).
	Detail map[string]any
}

// AuditReport is the aggregated output of one audit run. It always
// carries one entry per provider, empty when that provider's evaluator
// failed.
type AuditReport struct {
	StartedAt time.Time
	Findings  map[Provider][]Finding
}

type RemediationStatus string

const (
	RemediationApplied  RemediationStatus = "applied"
	RemediationAdvisory RemediationStatus = "advisory_logged"
	RemediationFailed   RemediationStatus = "failed"
)

// RemediationOutcome records what the dispatcher did for one finding.
type RemediationOutcome struct {
	Finding Finding
	Status  RemediationStatus
	Err     error
}

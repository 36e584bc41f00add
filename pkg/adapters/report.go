package adapters

import (
	"github.com/de-tools/iam-atlas/pkg/models/api"
	"github.com/de-tools/iam-atlas/pkg/models/domain"
)

func MapFindingDomainToApi(f domain.Finding) map[string]any {
	entry := map[string]any{
		"subject": f.Subject,
	}
	for k, v := range f.Detail {
		entry[k] = v
	}
	return entry
}

// MapProviderFindingsDomainToApi groups one provider's ordered findings
// by category. Every category the provider can emit gets a key, and the
// order of findings within a category is preserved.
func MapProviderFindingsDomainToApi(provider domain.Provider, findings []domain.Finding) api.ProviderFindings {
	res := api.ProviderFindings{}
	for _, category := range domain.Categories(provider) {
		res[string(category)] = []map[string]any{}
	}
	for _, f := range findings {
		key := string(f.Category)
		res[key] = append(res[key], MapFindingDomainToApi(f))
	}
	return res
}

func MapAuditReportDomainToApi(r domain.AuditReport) api.AuditReport {
	return api.AuditReport{
		Timestamp: r.StartedAt,
		AWS:       MapProviderFindingsDomainToApi(domain.ProviderAWS, r.Findings[domain.ProviderAWS]),
		Azure:     MapProviderFindingsDomainToApi(domain.ProviderAzure, r.Findings[domain.ProviderAzure]),
		GCP:       MapProviderFindingsDomainToApi(domain.ProviderGCP, r.Findings[domain.ProviderGCP]),
	}
}

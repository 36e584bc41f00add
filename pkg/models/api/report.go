package api

import "time"

// ProviderFindings maps a category key to the ordered list of finding
// entries recorded under it. Every category a provider's evaluator can
// emit is present, empty when nothing was found.
type ProviderFindings map[string][]map[string]any

// AuditReport is the serialized shape handed to the report sink. The
// provider and category keys are part of the report contract and must
// not be renamed.
type AuditReport struct {
	Timestamp time.Time        `json:"timestamp"`
	AWS       ProviderFindings `json:"aws"`
	Azure     ProviderFindings `json:"azure"`
	GCP       ProviderFindings `json:"gcp"`
}

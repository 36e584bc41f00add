package audit

import (
	"context"
	"time"

	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

// Settings contains configurable thresholds shared by the provider evaluators.
type Settings struct {
	// MaxKeyAgeDays is the age above which an access key or service
	// account key is reported as stale (default: 90). The comparison is
	// strict: a key aged exactly MaxKeyAgeDays is not flagged.
	MaxKeyAgeDays int
}

// DefaultSettings returns the default audit configuration.
func DefaultSettings() Settings {
	return Settings{MaxKeyAgeDays: 90}
}

// WholeDays returns now - t truncated to whole days. Age computations
// are always relative to the instant evaluation began, in UTC.
func WholeDays(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}

// Evaluator turns one provider's raw IAM data into normalized findings.
type Evaluator interface {
	Provider() domain.Provider
	Evaluate(ctx context.Context) ([]domain.Finding, error)
}

// Aggregate merges per-provider findings into a single report. It performs
// no filtering or reordering; every known provider gets an entry, empty
// when no findings were collected for it.
func Aggregate(startedAt time.Time, findings map[domain.Provider][]domain.Finding) domain.AuditReport {
	report := domain.AuditReport{
		StartedAt: startedAt.UTC(),
		Findings:  make(map[domain.Provider][]domain.Finding, len(domain.Providers())),
	}
	for _, provider := range domain.Providers() {
		fs := findings[provider]
		if fs == nil {
			fs = []domain.Finding{}
		}
		report.Findings[provider] = fs
	}
	return report
}

// Runner evaluates the configured providers one after another and
// aggregates their findings.
type Runner struct {
	evaluators []Evaluator
}

func NewRunner(evaluators ...Evaluator) *Runner {
	return &Runner{evaluators: evaluators}
}

// Run executes every evaluator sequentially. A failing evaluator
// contributes an empty findings list; its error is returned in the
// failures map so the caller can surface it without losing the other
// providers' results.
func (r *Runner) Run(ctx context.Context) (domain.AuditReport, map[domain.Provider]error) {
	logger := zerolog.Ctx(ctx)
	startedAt := time.Now().UTC()

	results := make(map[domain.Provider][]domain.Finding)
	failures := make(map[domain.Provider]error)

	for _, evaluator := range r.evaluators {
		provider := evaluator.Provider()
		logger.Info().Str("provider", string(provider)).Msg("starting IAM audit")

		findings, err := evaluator.Evaluate(ctx)
		if err != nil {
			logger.Error().
				Err(err).
				Str("provider", string(provider)).
				Msg("IAM audit failed for provider")
			failures[provider] = err
			continue
		}

		logger.Info().
			Str("provider", string(provider)).
			Int("findings", len(findings)).
			Msg("IAM audit completed")
		results[provider] = findings
	}

	return Aggregate(startedAt, results), failures
}

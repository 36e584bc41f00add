package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/de-tools/iam-atlas/pkg/adapters"
	"github.com/de-tools/iam-atlas/pkg/models/domain"
)

// Reporter persists an audit report as JSON: once at the configured
// report path and once as a timestamped archive copy in the log
// directory.
type Reporter struct {
	reportPath string
	logDir     string
}

func NewReporter(reportPath, logDir string) *Reporter {
	return &Reporter{
		reportPath: reportPath,
		logDir:     logDir,
	}
}

func (r *Reporter) Handle(report domain.AuditReport) error {
	apiReport := adapters.MapAuditReportDomainToApi(report)

	data, err := json.MarshalIndent(apiReport, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize audit report: %w", err)
	}

	if err := os.WriteFile(r.reportPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audit report to %s: %w", r.reportPath, err)
	}

	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", r.logDir, err)
	}

	archivePath := filepath.Join(r.logDir,
		fmt.Sprintf("audit_%s.json", report.StartedAt.Format("20060102_150405")))
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to archive audit report to %s: %w", archivePath, err)
	}

	return nil
}

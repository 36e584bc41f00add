package commands

import (
	"context"
	"errors"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/de-tools/iam-atlas/pkg/export"
	"github.com/de-tools/iam-atlas/pkg/models/domain"
	"github.com/de-tools/iam-atlas/pkg/services/audit"
	awsaudit "github.com/de-tools/iam-atlas/pkg/services/audit/aws"
	azureaudit "github.com/de-tools/iam-atlas/pkg/services/audit/azure"
	gcpaudit "github.com/de-tools/iam-atlas/pkg/services/audit/gcp"
	"github.com/de-tools/iam-atlas/pkg/services/config"
	"github.com/de-tools/iam-atlas/pkg/services/remediation"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type AuditCmd struct {
	cfgPath string
}

func NewAuditCmd() *cobra.Command {
	ac := &AuditCmd{}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit IAM configuration across AWS, Azure, and GCP",
		RunE:  ac.run,
	}

	cmd.Flags().StringVarP(&ac.cfgPath, "config", "c", "config.yaml", "Path to the configuration file")

	return cmd
}

func (ac *AuditCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := zerolog.Ctx(ctx)

	cfg, err := config.Load(ac.cfgPath)
	if err != nil {
		return err
	}

	settings := audit.Settings{MaxKeyAgeDays: cfg.Global.MaxKeyAgeDays}

	// A provider whose client cannot be constructed is treated like a
	// failed evaluator: logged, and represented by an empty findings list
	// in the report.
	var evaluators []audit.Evaluator
	awsCfg := loadAWS(ctx, cfg, settings, &evaluators)
	loadAzure(ctx, cfg, &evaluators)
	loadGCP(ctx, cfg, settings, &evaluators)

	report, failures := audit.NewRunner(evaluators...).Run(ctx)

	reporter := export.NewReporter(cfg.Global.ReportFile, cfg.Global.LogDirectory)
	if err := reporter.Handle(report); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.Global.ReportFile).Msg("audit report saved")

	if len(failures) > 0 {
		for provider, failure := range failures {
			logger.Error().Err(failure).Str("provider", string(provider)).Msg("provider audit incomplete")
		}
	}

	if !cfg.Global.EnableRemediation {
		return nil
	}

	if awsCfg == nil {
		logger.Warn().Msg("remediation enabled but AWS client unavailable, advisory records only")
	}
	dispatcher := remediation.NewDispatcher(
		newKeyDisabler(awsCfg),
		remediation.NewLogSink(*logger),
	)
	outcomes := dispatcher.Remediate(ctx, report)

	counts := map[domain.RemediationStatus]int{}
	for _, outcome := range outcomes {
		counts[outcome.Status]++
	}
	logger.Info().
		Int("applied", counts[domain.RemediationApplied]).
		Int("advisory", counts[domain.RemediationAdvisory]).
		Int("failed", counts[domain.RemediationFailed]).
		Msg("remediation completed")

	return nil
}

func loadAWS(ctx context.Context, cfg *config.Config, settings audit.Settings, evaluators *[]audit.Evaluator) *awssdk.Config {
	logger := zerolog.Ctx(ctx)

	awsCfg, err := awsaudit.LoadConfig(ctx, cfg.AWS.Profile)
	if err != nil {
		logger.Error().Err(err).Str("provider", "aws").Msg("skipping provider")
		return nil
	}
	*evaluators = append(*evaluators, awsaudit.NewEvaluator(awsaudit.NewFetcher(*awsCfg), settings))
	return awsCfg
}

func loadAzure(ctx context.Context, cfg *config.Config, evaluators *[]audit.Evaluator) {
	logger := zerolog.Ctx(ctx)

	azureCfg, err := azureaudit.LoadConfig(cfg.Azure.Profile)
	if err != nil {
		logger.Error().Err(err).Str("provider", "azure").Msg("skipping provider")
		return
	}
	fetcher, err := azureaudit.NewFetcher(azureCfg)
	if err != nil {
		logger.Error().Err(err).Str("provider", "azure").Msg("skipping provider")
		return
	}
	*evaluators = append(*evaluators, azureaudit.NewEvaluator(fetcher))
}

func loadGCP(ctx context.Context, cfg *config.Config, settings audit.Settings, evaluators *[]audit.Evaluator) {
	logger := zerolog.Ctx(ctx)

	iamService, crmService, err := gcpaudit.NewServices(ctx, gcpaudit.Config{
		ProjectID:       cfg.GCP.ProjectID,
		CredentialsFile: cfg.GCP.CredentialsFile,
	})
	if err != nil {
		logger.Error().Err(err).Str("provider", "gcp").Msg("skipping provider")
		return
	}
	fetcher := gcpaudit.NewFetcher(iamService, crmService, cfg.GCP.ProjectID)
	*evaluators = append(*evaluators, gcpaudit.NewEvaluator(fetcher, settings))
}

// newKeyDisabler degrades to a no-op error implementation when the AWS
// client could not be constructed, so advisory processing still runs.
func newKeyDisabler(awsCfg *awssdk.Config) remediation.AccessKeyDisabler {
	if awsCfg == nil {
		return unavailableDisabler{}
	}
	return remediation.NewIAMKeyDisabler(*awsCfg)
}

type unavailableDisabler struct{}

func (unavailableDisabler) DisableAccessKey(_ context.Context, _, _ string) error {
	return errors.New("AWS client unavailable")
}

package gcp

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/option"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
}

// NewServices builds the IAM and Resource Manager discovery clients. When
// CredentialsFile is empty the client falls back to application default
// credentials (GOOGLE_APPLICATION_CREDENTIALS and the usual chain).
func NewServices(ctx context.Context, cfg Config) (*iam.Service, *cloudresourcemanager.Service, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, nil, fmt.Errorf("GCP service account file not found at %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	iamService, err := iam.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	crmService, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource manager service: %w", err)
	}

	return iamService, crmService, nil
}

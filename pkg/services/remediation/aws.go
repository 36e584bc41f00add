package remediation

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type iamKeyDisabler struct {
	client *iam.Client
}

// NewIAMKeyDisabler returns an AccessKeyDisabler backed by the IAM
// UpdateAccessKey call, setting the key status to Inactive.
func NewIAMKeyDisabler(cfg awssdk.Config) AccessKeyDisabler {
	return &iamKeyDisabler{client: iam.NewFromConfig(cfg)}
}

func (d *iamKeyDisabler) DisableAccessKey(ctx context.Context, userName, accessKeyID string) error {
	_, err := d.client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		UserName:    awssdk.String(userName),
		AccessKeyId: awssdk.String(accessKeyID),
		Status:      types.StatusTypeInactive,
	})
	if err != nil {
		return fmt.Errorf("failed to disable access key %s for user %s: %w", accessKeyID, userName, err)
	}
	return nil
}

package azure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"gopkg.in/ini.v1"
)

type Config struct {
	SubscriptionID string
	TenantID       string
	Credentials    azcore.TokenCredential
}

// LoadConfig builds Azure credentials from the AZURE_TENANT_ID,
// AZURE_CLIENT_ID, AZURE_CLIENT_SECRET, and AZURE_SUBSCRIPTION_ID
// environment variables. A missing subscription id falls back to the
// given profile in ~/.azure/config.
func LoadConfig(profile string) (*Config, error) {
	tenantID := os.Getenv("AZURE_TENANT_ID")
	clientID := os.Getenv("AZURE_CLIENT_ID")
	clientSecret := os.Getenv("AZURE_CLIENT_SECRET")
	subscriptionID := os.Getenv("AZURE_SUBSCRIPTION_ID")

	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET must be set")
	}

	if subscriptionID == "" {
		fromProfile, err := subscriptionFromProfile(profile)
		if err != nil {
			return nil, err
		}
		subscriptionID = fromProfile
	}

	credentials, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	return &Config{
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		Credentials:    credentials,
	}, nil
}

func subscriptionFromProfile(profile string) (string, error) {
	if profile == "" {
		profile = "default"
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".azure", "config")
	cfg, err := ini.Load(configPath)
	if err != nil {
		return "", fmt.Errorf("unable to load Azure config file: %w", err)
	}

	section, err := cfg.GetSection(profile)
	if err != nil {
		return "", fmt.Errorf("profile %s not found in Azure config: %w", profile, err)
	}

	subscriptionID := section.Key("subscription").String()
	if subscriptionID == "" {
		return "", fmt.Errorf("subscription ID not found in profile %s", profile)
	}
	return subscriptionID, nil
}

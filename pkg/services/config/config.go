package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Global struct {
	EnableRemediation bool   `mapstructure:"enable_remediation"`
	LogDirectory      string `mapstructure:"log_directory"`
	ReportFile        string `mapstructure:"report_file"`
	MaxKeyAgeDays     int    `mapstructure:"max_key_age_days"`
}

type AWS struct {
	Profile string `mapstructure:"profile"`
}

type Azure struct {
	Profile string `mapstructure:"profile"`
}

type GCP struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type Config struct {
	Global Global `mapstructure:"global"`
	AWS    AWS    `mapstructure:"aws"`
	Azure  Azure  `mapstructure:"azure"`
	GCP    GCP    `mapstructure:"gcp"`
}

// Load reads the audit configuration from the given YAML file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("global.enable_remediation", false)
	v.SetDefault("global.log_directory", "logs/")
	v.SetDefault("global.report_file", "audit_report.json")
	v.SetDefault("global.max_key_age_days", 90)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

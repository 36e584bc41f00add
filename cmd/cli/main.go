package main

import (
	"context"
	"fmt"
	"os"

	"github.com/de-tools/iam-atlas/pkg/terminal/commands"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:   "iam-atlas",
		Short: "Multi-cloud IAM audit and remediation",
	}
	rootCmd.AddCommand(commands.NewAuditCmd())

	ctx := logger.WithContext(context.Background())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"marketplace/internal/bootstrap"
	"marketplace/internal/config"
	"marketplace/internal/pkg/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tools for marketplace payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "Debug logging")

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(orphansCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// APIと同じ設定・配線でAppを作る
func openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	log := logging.InitLogger(debug)

	return bootstrap.New(context.Background(), cfg, log)
}

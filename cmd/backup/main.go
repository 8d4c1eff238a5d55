package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"abapractice/internal/config"
	"abapractice/internal/database"
	"abapractice/internal/service"
)

type options struct {
	configDir string
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "backup",
		Short:        "Export and import the practice database as JSON",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", "config", "directory holding config.yaml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every step")

	root.AddCommand(newExportCmd(opts), newImportCmd(opts))
	return root
}

func newExportCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export clinical data to a JSON file",
		Example: `  backup export
  backup export --output mybackup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("abapractice_backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			return withBackupService(cmd.Context(), opts, func(ctx context.Context, backups *service.BackupService, logger *zap.Logger) error {
				logger.Info("exporting database", zap.String("output", output))
				data, err := backups.Export(ctx, output)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}

				info, err := os.Stat(output)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d patients, %d sessions and %d progress entries to %s (%.2f MB)\n",
					len(data.Patients), len(data.Sessions), len(data.Entries), output, float64(info.Size())/1024/1024)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: abapractice_backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	var (
		input     string
		clearData bool
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import clinical data from a JSON file",
		Example: `  backup import --input backup.json
  backup import --input backup.json --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file: %w", err)
			}
			if clearData && !yes && !confirm(cmd, "WARNING: This will delete all existing clinical data. Type 'yes' to confirm: ") {
				fmt.Fprintln(cmd.OutOrStdout(), "Import cancelled")
				return nil
			}

			return withBackupService(cmd.Context(), opts, func(ctx context.Context, backups *service.BackupService, logger *zap.Logger) error {
				logger.Info("importing database", zap.String("input", input), zap.Bool("clear", clearData))
				if err := backups.Import(ctx, input, clearData); err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Import complete")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input file path")
	cmd.Flags().BoolVar(&clearData, "clear", false, "clear existing data before import (destructive)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

// withBackupService opens the configured database, brings its schema up to
// date and hands a backup service to fn
func withBackupService(ctx context.Context, opts *options, fn func(context.Context, *service.BackupService, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
	}
	defer logger.Sync()

	loader, err := config.Load(opts.configDir)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return fn(ctx, service.NewBackupService(db, logger), logger)
}

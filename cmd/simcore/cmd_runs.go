package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/backup"
	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/report"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, export and import recorded runs",
		Long: `Work with the run history store.

Runs are recorded by "simcore --record", "simcore serve --record" and the
MCP simulate tool. Archives are gzip-compressed JSONL files with a
checksummed header; the default directory is ~/.simcore/archives.

Examples:
  simcore runs list --limit 5
  simcore runs show <id>
  simcore runs export                        # Timestamped archive, keeps the last 10
  simcore runs export --s3-bucket my-bucket  # Also upload it
  simcore runs import runs.jsonl.gz --replace
  simcore runs prune --keep 3 --older-than 30d`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsImportCmd(),
		newRunsArchivesCmd(),
		newRunsPruneCmd(),
	)

	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				// Episodes are left out of the listing; use "runs show".
				for i := range runs {
					runs[i].Episodes = nil
				}
				if runs == nil {
					runs = []models.RunRecord{}
				}
				return json.NewEncoder(out).Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tSEED\tEPISODES\tOBJECTIVE_RATE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.6f\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.Source, r.Seed,
					r.Aggregate.Episodes, r.Aggregate.ObjectiveRate)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(run)
			}
			fmt.Fprintf(out, "Run %s (%s, %s)\nSeed: %d\nTraits: %s\n\n",
				run.ID, run.Source, run.CreatedAt.Format(time.RFC3339), run.Seed, run.Traits)
			return report.WriteText(out, models.Batch{Episodes: run.Episodes, Aggregate: run.Aggregate}, 50)
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write run history and policies to an archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			bucket, _ := cmd.Flags().GetString("s3-bucket")
			keep, _ := cmd.Flags().GetInt("keep")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := newLogger(cfg, cmd.ErrOrStderr())
			defer closer.Close()

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				dir, err := archiveDir()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(dir, 0700); err != nil {
					return fmt.Errorf("creating archive directory: %w", err)
				}
				path = backup.ArchivePath(dir, time.Now())
			}

			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			header, err := backup.ExportFile(ctx, s, path)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			// Retention only applies to the managed directory.
			if len(args) == 0 && keep > 0 {
				if removed, err := backup.Prune(filepath.Dir(path), backup.KeepLast{N: keep}); err != nil {
					logger.Warn("failed to apply retention", "error", err)
				} else if len(removed) > 0 {
					logger.Info("pruned archives", "count", len(removed))
				}
			}

			var key string
			if bucket != "" || cfg.Export.S3Bucket != "" {
				uploader, err := newUploader(ctx, cfg, bucket)
				if err != nil {
					return err
				}
				if key, err = uploader.PutFile(ctx, path, "application/gzip"); err != nil {
					return fmt.Errorf("upload failed: %w", err)
				}
				logger.Info("archive uploaded", "bucket", uploader.Bucket(), "key", key)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"path":         path,
					"run_count":    header.RunCount,
					"policy_count": header.PolicyCount,
					"checksum":     header.Checksum,
					"s3_key":       key,
				})
			}
			fmt.Fprintf(out, "Exported %d runs, %d policies\n  Path: %s\n", header.RunCount, header.PolicyCount, path)
			if key != "" {
				fmt.Fprintf(out, "  S3 key: %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().String("s3-bucket", "", "Upload the archive to this S3 bucket (default: export.s3_bucket)")
	cmd.Flags().Int("keep", 10, "Archives to keep in the default directory (0 keeps all)")
	return cmd
}

func newRunsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <path|s3-key>",
		Short: "Load runs and policies from an archive",
		Long: `Import an archive written by "runs export".

By default existing runs and policies are kept and duplicates skipped.
--replace clears run history first. With --s3-bucket the argument is an
object name under the configured prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			replace, _ := cmd.Flags().GetBool("replace")
			bucket, _ := cmd.Flags().GetString("s3-bucket")

			mode := backup.ImportMerge
			if replace {
				mode = backup.ImportReplace
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var result *backup.ImportResult
			if bucket != "" {
				uploader, err := newUploader(ctx, cfg, bucket)
				if err != nil {
					return err
				}
				body, err := uploader.Get(ctx, args[0])
				if err != nil {
					return err
				}
				defer body.Close()
				result, err = backup.Import(ctx, s, body, mode)
				if err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
			} else {
				result, err = backup.ImportFile(ctx, s, args[0], mode)
				if err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(result)
			}
			fmt.Fprintf(out, "Imported %d runs (%d skipped), %d policies (%d skipped)\n",
				result.RunsImported, result.RunsSkipped, result.PoliciesImported, result.PoliciesSkipped)
			return nil
		},
	}

	cmd.Flags().Bool("replace", false, "Clear run history before importing")
	cmd.Flags().String("s3-bucket", "", "Read the archive from this S3 bucket")
	return cmd
}

func newRunsArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List archives in the default directory or an S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			bucket, _ := cmd.Flags().GetString("s3-bucket")
			out := cmd.OutOrStdout()

			if bucket != "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				uploader, err := newUploader(cmd.Context(), cfg, bucket)
				if err != nil {
					return err
				}
				objects, err := uploader.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(objects)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
				for _, o := range objects {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format(time.RFC3339))
				}
				return tw.Flush()
			}

			dir, err := archiveDir()
			if err != nil {
				return err
			}
			archives, err := backup.ListArchives(dir)
			if err != nil {
				return err
			}
			if jsonOut {
				if archives == nil {
					archives = []backup.ArchiveInfo{}
				}
				return json.NewEncoder(out).Encode(archives)
			}
			if len(archives) == 0 {
				fmt.Fprintf(out, "No archives in %s\n", dir)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tCREATED\tRUNS\tSIZE")
			for _, a := range archives {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", a.Path, a.CreatedAt.Format(time.RFC3339), a.RunCount, a.Size)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("s3-bucket", "", "List objects in this S3 bucket instead")
	return cmd
}

func newRunsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old archives from the default directory",
		Long: `Delete archives that no rule keeps. An archive survives when it is
among the --keep newest or younger than --older-than.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			olderThan, _ := cmd.Flags().GetString("older-than")

			rule := backup.KeepAny{backup.KeepLast{N: keep}}
			if olderThan != "" {
				age, err := backup.ParseDuration(olderThan)
				if err != nil {
					return err
				}
				rule = append(rule, backup.KeepNewerThan{MaxAge: age})
			}

			dir, err := archiveDir()
			if err != nil {
				return err
			}
			removed, err := backup.Prune(dir, rule)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if removed == nil {
					removed = []string{}
				}
				return json.NewEncoder(out).Encode(map[string]interface{}{"removed": removed})
			}
			fmt.Fprintf(out, "Removed %d archives\n", len(removed))
			return nil
		},
	}

	cmd.Flags().Int("keep", 10, "Number of newest archives to keep")
	cmd.Flags().String("older-than", "", "Also keep archives younger than this (e.g. 72h, 30d, 2w)")
	return cmd
}

func archiveDir() (string, error) {
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archives"), nil
}

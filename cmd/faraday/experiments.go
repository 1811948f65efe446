package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/faraday/faraday"
	imports "github.com/arthur-debert/faraday/faraday/import"
	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

func newInitCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory with an empty store and default users",
		Long: `Create the data directory if needed and seed experiments.json and creds.json
when they do not exist. Existing files are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := faraday.Prepare(faraday.Options{
				DataDir:         app.cfg.DataDir,
				ExperimentsPath: app.cfg.ExperimentsPath(),
				CredentialsPath: app.cfg.CredentialsPath(),
			})
			if err != nil {
				return NewStoreError("initialise data directory", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data directory: %s\n", opts.DataDir)
			fmt.Fprintf(out, "Experiments:    %s\n", opts.ExperimentsPath)
			fmt.Fprintf(out, "Credentials:    %s\n", opts.CredentialsPath)
			return nil
		},
	}
}

func newListCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Args:  cobra.NoArgs,
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			experiments, err := svc.List(cmd.Context())
			if err != nil {
				return NewStoreError("list experiments", err)
			}
			return printExperiments(cmd.OutOrStdout(), app.output, experiments)
		}),
	}
}

func newShowCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one experiment with its rows",
		Args:  cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			exp, err := svc.Get(cmd.Context(), args[0])
			if errors.Is(err, types.ErrNotFound) {
				return NewNotFoundError("show experiment", args[0])
			}
			if err != nil {
				return NewStoreError("show experiment", err)
			}
			return printExperiment(cmd.OutOrStdout(), app.output, exp)
		}),
	}
}

func newNewCmd(app *cliApp) *cobra.Command {
	var locations, frequencies int

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a blank experiment",
		Long: `Create an experiment with Frequency, Reference and location columns L1..Ln,
their shielding columns, and one zeroed row per frequency.`,
		Args: cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			exp, err := svc.CreateBlank(cmd.Context(), args[0], locations, frequencies, app.actor())
			if err != nil {
				return NewStoreError("create experiment", err)
			}
			return printExperiment(cmd.OutOrStdout(), app.output, exp)
		}),
	}
	cmd.Flags().IntVarP(&locations, "locations", "l", 1, "number of measurement locations")
	cmd.Flags().IntVarP(&frequencies, "frequencies", "n", 1, "number of frequency rows")
	return cmd
}

func newImportCmd(app *cliApp) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import spreadsheets (.xlsx, .csv) and derive shielding columns",
		Long: `Import one or more spreadsheets. The first row holds the column names; empty
cells read as 0. A shielding column is added for every measurement column.
The experiment is named after the file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return previewImports(cmd, args)
			}
			return app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
				out := cmd.OutOrStdout()
				for _, path := range args {
					result, err := uploadFile(cmd, svc, path, app.actor())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Imported %s as %s (%d rows, derived: %s)\n",
						result.Experiment.Name, result.Experiment.ID, len(result.Experiment.Data),
						strings.Join(result.Transform.Derived, ", "))
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "parse and transform without storing")
	return cmd
}

func uploadFile(cmd *cobra.Command, svc *faraday.Service, path, actor string) (faraday.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return faraday.UploadResult{}, NewStoreError("import "+path, err)
	}
	defer func() { _ = f.Close() }()

	result, err := svc.Upload(cmd.Context(), filepath.Base(path), f, actor)
	if err != nil {
		return faraday.UploadResult{}, NewStoreError("import "+path, err,
			fmt.Sprintf("Supported formats: %s", strings.Join(formats.List(), ", ")))
	}
	return result, nil
}

// previewImports reports what an import would produce without opening the store
func previewImports(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	for _, path := range paths {
		upload, err := imports.ImportFile(path)
		if err != nil {
			return NewStoreError("import "+path, err)
		}
		fmt.Fprintf(out, "%s: reference %q, %d rows\n", imports.NameFromFilename(path), upload.Result.Reference, len(upload.Table.Data))
		fmt.Fprintf(out, "  columns: %s\n", strings.Join(upload.Table.Columns, ", "))
	}
	fmt.Fprintln(out, "(DRY RUN - nothing stored)")
	return nil
}

func newExportCmd(app *cliApp) *cobra.Command {
	var formatName, outPath string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export an experiment as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			format, err := formats.Get(formatName)
			if err != nil {
				return &CLIError{
					Operation:   "export experiment",
					Cause:       err.Error(),
					Suggestions: []string{fmt.Sprintf("Use one of: %s", strings.Join(formats.List(), ", "))},
				}
			}

			download, err := svc.Export(cmd.Context(), args[0], format)
			if errors.Is(err, types.ErrNotFound) {
				return NewNotFoundError("export experiment", args[0])
			}
			if err != nil {
				return NewStoreError("export experiment", err)
			}

			target := outPath
			if target == "" {
				target = download.Filename
			}
			if err := os.WriteFile(target, download.Content, 0644); err != nil {
				return NewStoreError("export experiment", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", "xlsx", "spreadsheet format: xlsx|csv")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default: derived from the experiment name)")
	return cmd
}

func newDeleteCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			removed, err := svc.Delete(cmd.Context(), args[0])
			if err != nil {
				return NewStoreError("delete experiment", err)
			}
			if !removed {
				return NewNotFoundError("delete experiment", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func newRederiveCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "rederive <id>",
		Short: "Recompute the shielding columns of a stored experiment",
		Long: `Recompute every shielding column from the current reference and measurement
values. Needed after editing rows, since edits never recompute derived columns.`,
		Args: cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			exp, result, err := svc.Rederive(cmd.Context(), args[0], app.actor())
			if errors.Is(err, types.ErrNotFound) {
				return NewNotFoundError("rederive experiment", args[0])
			}
			if err != nil {
				return NewStoreError("rederive experiment", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rederived %s from %q: %s\n",
				exp.ID, result.Reference, strings.Join(result.Derived, ", "))
			return nil
		}),
	}
}

func newBackupCmd(app *cliApp) *cobra.Command {
	var formatName, outPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a zip archive with the store document and every experiment",
		Args:  cobra.NoArgs,
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			format, err := formats.Get(formatName)
			if err != nil {
				return NewConfigError("backup", err.Error(),
					fmt.Sprintf("Use one of: %s", strings.Join(formats.List(), ", ")))
			}

			f, err := os.Create(outPath)
			if err != nil {
				return NewStoreError("backup", err)
			}
			if err := svc.Backup(cmd.Context(), f, format); err != nil {
				_ = f.Close()
				_ = os.Remove(outPath)
				return NewStoreError("backup", err)
			}
			if err := f.Close(); err != nil {
				return NewStoreError("backup", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", "xlsx", "spreadsheet format inside the archive: xlsx|csv")
	cmd.Flags().StringVar(&outPath, "out", "faraday-backup.zip", "output archive")
	return cmd
}

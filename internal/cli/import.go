package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ErrImportFailed is returned when at least one row failed.
var ErrImportFailed = errors.New("import finished with failed rows")

// ValidateCmd checks a CSV file against an empty in-memory engine.
func ValidateCmd() *cobra.Command {
	var partner string

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Dry-run a CSV import and report row problems",
		Long: `Validate parses FILE exactly as an import would and reports errors and
warnings per row. Nothing is saved. Duplicate detection only covers rows
within the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readCSV(args[0])
			if err != nil {
				return err
			}
			svc, err := core.NewService(core.NewMemoryStore(), nil, core.Config{MaxImportSize: int64(len(data)) + 1})
			if err != nil {
				return err
			}
			res, err := svc.ImportRecords(cmd.Context(), data, core.ImportOptions{AssignedPartner: partner, DryRun: true})
			if err != nil {
				return err
			}
			printImportReport(cmd.OutOrStdout(), res)
			if res.Failed > 0 {
				return ErrImportFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&partner, "partner", "validation", "Partner to assign (only shown in the report)")
	return cmd
}

// ImportCmd imports a CSV file into the configured store.
func ImportCmd(build BuildFunc) *cobra.Command {
	var (
		partner string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import farmers from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if partner == "" {
				return errors.New("--partner is required")
			}
			data, err := readCSV(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, build, func(ctx context.Context, svc *core.Service) error {
				res, err := svc.ImportRecords(ctx, data, core.ImportOptions{AssignedPartner: partner, DryRun: dryRun})
				if err != nil {
					return err
				}
				printImportReport(cmd.OutOrStdout(), res)
				if res.Failed > 0 {
					return ErrImportFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&partner, "partner", "", "Partner the imported farmers are assigned to (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate against existing records without saving")
	return cmd
}

func printImportReport(w io.Writer, res *core.ImportResult) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	title := "Import"
	if res.DryRun {
		title = "Validation (dry run)"
	}
	fmt.Fprintf(w, "%s %s\n\n", bold.Sprint(title), res.ImportID)
	fmt.Fprintf(w, "  Total:   %d\n", res.Total)
	fmt.Fprintf(w, "  New:     %s\n", green.Sprint(res.Summary.NewFarmers))
	fmt.Fprintf(w, "  Updated: %s\n", green.Sprint(res.Summary.UpdatedFarmers))
	fmt.Fprintf(w, "  Skipped: %s\n", yellow.Sprint(res.Summary.SkippedFarmers))
	fmt.Fprintf(w, "  Failed:  %s\n", red.Sprint(res.Failed))

	printIssues(w, red.Sprint("Errors"), res.Errors)
	printIssues(w, yellow.Sprint("Warnings"), res.Warnings)
}

func printIssues(w io.Writer, heading string, issues []core.RowIssue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d)\n", heading, len(issues))
	for _, is := range issues {
		fmt.Fprintf(w, "  row %d  %-16s %s", is.Row, is.Field, is.Message)
		if is.Value != "" {
			fmt.Fprintf(w, " [%s]", is.Value)
		}
		fmt.Fprintln(w)
	}
}

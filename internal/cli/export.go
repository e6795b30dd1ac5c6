package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// ExportCmd writes records as CSV.
func ExportCmd(build BuildFunc) *cobra.Command {
	var (
		spec     core.FilterSpec
		from, to string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if spec.From, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if spec.To, err = parseDateFlag("to", to); err != nil {
				return err
			}
			if spec.To != nil {
				end := core.EndOfDay(*spec.To)
				spec.To = &end
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrapf(err, "create %s", output)
				}
				defer f.Close()
				w = f
			}

			return withApp(cmd, build, func(ctx context.Context, svc *core.Service) error {
				n, err := svc.ExportRecords(ctx, w, spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records\n", n)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&spec.Search, "search", "", "Match name, email, location or crop")
	f.StringVar(&spec.Status, "status", "", "Filter by status")
	f.StringVar(&spec.Stage, "stage", "", "Filter by stage")
	f.StringVar(&spec.Region, "region", "", "Filter by state")
	f.StringVar(&spec.Priority, "priority", "", "Filter by priority")
	f.StringVar(&spec.AssignedAgent, "agent", "", "Filter by assigned agent")
	f.StringVar(&from, "from", "", "Created on or after this date")
	f.StringVar(&to, "to", "", "Created on or before this date")
	f.StringVarP(&output, "output", "o", "-", "Output file (- for stdout)")
	return cmd
}

// StatsCmd prints pipeline statistics.
func StatsCmd(build BuildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print onboarding statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, svc *core.Service) error {
				st, err := svc.Statistics(ctx)
				if err != nil {
					return err
				}
				printStatistics(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

// FollowUpsCmd sends every due follow-up once.
func FollowUpsCmd(build BuildFunc) *cobra.Command {
	var templateID string

	cmd := &cobra.Command{
		Use:   "followups",
		Short: "Send due follow-up messages once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, svc *core.Service) error {
				sent, err := svc.RunFollowUps(ctx, templateID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d follow-up messages\n", sent)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", core.DefaultFollowUpTemplate, "Template to send")
	return cmd
}

func printStatistics(w io.Writer, st core.Statistics) {
	bold := color.New(color.Bold)

	fmt.Fprintln(w, bold.Sprint("Pipeline"))
	fmt.Fprintf(w, "  Total:        %d\n", st.Total)
	fmt.Fprintf(w, "  Pending:      %d\n", st.Pending)
	fmt.Fprintf(w, "  In progress:  %d\n", st.InProgress)
	fmt.Fprintf(w, "  Completed:    %s\n", color.GreenString("%d", st.Completed))
	fmt.Fprintf(w, "  Rejected:     %s\n", color.RedString("%d", st.Rejected))
	fmt.Fprintf(w, "  On hold:      %s\n", color.YellowString("%d", st.OnHold))
	fmt.Fprintf(w, "  This week:    %d\n", st.ThisWeek)
	fmt.Fprintf(w, "  This month:   %d\n", st.ThisMonth)
	fmt.Fprintf(w, "  Avg days:     %.1f\n", st.AverageCompletionTime)
	fmt.Fprintf(w, "  Success rate: %.1f%%\n", st.SuccessRate)

	printDistribution(w, bold.Sprint("Regions"), st.RegionalDistribution)
	printDistribution(w, bold.Sprint("Crops"), st.CropDistribution)
}

// printDistribution lists counts largest first, ties by name.
func printDistribution(w io.Writer, heading string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}
	keys := lo.Keys(dist)
	sort.Slice(keys, func(i, j int) bool {
		if dist[keys[i]] != dist[keys[j]] {
			return dist[keys[i]] > dist[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(w, "\n%s\n", heading)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, dist[k])
	}
}

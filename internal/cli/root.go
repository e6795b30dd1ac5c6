// Package cli implements the onboardctl operator commands.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/application"
	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// BuildFunc wires an engine for commands that use the configured store.
type BuildFunc func(ctx context.Context) (*application.App, error)

// NewRootCmd returns the onboardctl command tree.
func NewRootCmd(build BuildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "onboardctl",
		Short: "Operate the farmer onboarding engine",
		Long: `onboardctl validates and imports farmer CSV files, exports records and
prints pipeline statistics. Commands other than validate use the store
configured by DATABASE_URL (in-memory when unset).`,
		SilenceUsage: true,
	}

	var noColor bool
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	}

	root.AddCommand(ValidateCmd())
	root.AddCommand(ImportCmd(build))
	root.AddCommand(ExportCmd(build))
	root.AddCommand(StatsCmd(build))
	root.AddCommand(FollowUpsCmd(build))
	return root
}

// withApp builds the engine, runs fn and releases the engine.
func withApp(cmd *cobra.Command, build BuildFunc, fn func(ctx context.Context, svc *core.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := build(ctx)
	if err != nil {
		return errors.Wrap(err, "start engine")
	}
	defer app.Close()
	return fn(ctx, app.Service)
}

func readCSV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

// parseDateFlag parses an optional date flag value.
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, ok := core.ParseDate(value)
	if !ok {
		return nil, errors.Newf("invalid --%s date %q", name, value)
	}
	return &t, nil
}

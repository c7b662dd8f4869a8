package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormcore/internal/orm/execute"
	"github.com/conduit-lang/ormcore/internal/orm/projection"
)

var (
	planExecute bool
	planKeys    []string
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <entity> <shape>",
		Short: "Show the batched fetches for a projection",
		Long: `Plan a projection of an entity and print one line per fetch.

The shape lists properties and navigations. Navigations take a nested
shape in braces or a dotted path; a navigation without one selects every
property of its target.

With --execute the plan is run against DATABASE_URL and the result is
printed as JSON.`,
		Example: `  ormcore plan Category "Name,Products{Name,Tags{Label}}"
  ormcore plan Order "PlacedAt,Lines.Product" --execute --key 42`,
		Args: cobra.ExactArgs(2),
		RunE: runPlan,
	}

	cmd.Flags().BoolVarP(&planExecute, "execute", "x", false, "Run the plan against the database")
	cmd.Flags().StringSliceVarP(&planKeys, "key", "k", nil, "Restrict the root to these primary keys")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	root, err := e.lookup(cmd, args[0])
	if err != nil {
		return err
	}

	shape, err := projection.ParseShape(args[1])
	if err != nil {
		return err
	}

	planner := projection.NewPlanner(e.model,
		projection.WithLogger(e.logger),
		projection.WithMaxDepth(e.cfg.Planner.MaxDepth))
	plan, err := planner.Plan(root.Name, shape)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, plan.String())

	if !planExecute {
		return nil
	}

	keys, err := parseKeys(root.PrimaryKey(), planKeys)
	if err != nil {
		return err
	}

	db, err := e.database()
	if err != nil {
		return err
	}
	defer db.Close()

	source := execute.NewSQLSource(db, execute.WithSQLLogger(e.logger))
	executor := execute.NewExecutor(execute.WithLogger(e.logger))
	records, err := executor.Run(context.Background(), plan, source, keys...)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.TrimSpace(string(data)))
	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormcore/internal/cli/ui"
	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/execute"
)

var checkDeleteApply bool

// NewCheckDeleteCommand creates the check-delete command
func NewCheckDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-delete <entity> <key>",
		Short: "Show what deleting a row implies for its dependents",
		Long: `Evaluate the delete behavior of every relationship reaching the row
against DATABASE_URL. Nothing is modified unless --apply is given, in
which case the check and the action run in one transaction.

The result is one of:
  proceed               no dependent row is affected
  block                 a restrict relationship still has referencing rows
  cascade               dependent rows are deleted first
  nullify_then_proceed  dependent foreign keys are set to null first`,
		Example: `  ormcore check-delete Category 1
  ormcore check-delete Customer 0b6c7a4e-8a53-4bd4-9d69-3f1f3c2c4a11
  ormcore check-delete Order 42 --apply`,
		Args: cobra.ExactArgs(2),
		RunE: runCheckDelete,
	}

	cmd.Flags().BoolVar(&checkDeleteApply, "apply", false, "Carry out the delete")

	return cmd
}

func runCheckDelete(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	entity, err := e.lookup(cmd, args[0])
	if err != nil {
		return err
	}

	key, err := parseKey(entity.PrimaryKey(), args[1])
	if err != nil {
		return err
	}

	db, err := e.database()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := deletion.NewEngine(e.model, deletion.WithLogger(e.logger))
	ctx := context.Background()

	var action *deletion.Action
	var changed int64
	if checkDeleteApply {
		applier := execute.NewApplier(db, e.model, e.logger)
		action, changed, err = applier.Delete(ctx, engine, entity.Name, key)
		if err != nil && !errors.Is(err, execute.ErrDeleteBlocked) {
			return err
		}
	} else {
		source := execute.NewSQLSource(db, execute.WithSQLLogger(e.logger))
		action, err = engine.CheckDelete(ctx, entity.Name, key, source)
		if err != nil {
			return err
		}
	}

	kindColor := color.New(color.FgGreen, color.Bold)
	switch action.Kind {
	case deletion.Block:
		kindColor = color.New(color.FgRed, color.Bold)
	case deletion.Cascade, deletion.NullifyThenProceed:
		kindColor = color.New(color.FgYellow, color.Bold)
	}
	if noColorFlag {
		kindColor.DisableColor()
	}

	out := cmd.OutOrStdout()
	kindColor.Fprintln(out, action.Kind)
	fmt.Fprint(out, action.String())

	if action.Kind == deletion.Block {
		return fmt.Errorf("delete of %s %v is blocked by %s", entity.Name, key, action.BlockedBy)
	}

	if checkDeleteApply {
		ui.WriteSuccess(out, fmt.Sprintf("%d rows changed", changed), noColorFlag)
	}
	return nil
}

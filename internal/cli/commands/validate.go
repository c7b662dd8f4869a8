package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormcore/internal/cli/ui"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the model and list its relationships",
		Long: `Load the model file, resolve relationships and freeze the model.

Every relationship is listed with its cardinality, delete behavior and
whether it was found by convention or configured explicitly.`,
		Example: `  ormcore validate
  ormcore validate --model schema/shop.yml`,
		Args: cobra.NoArgs,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	model := e.model

	entities := model.Entities()
	rels := model.Relationships()
	ui.WriteSuccess(out, fmt.Sprintf("%s is valid: %d entities, %d relationships",
		e.cfg.ModelFile, len(entities), len(rels)), noColorFlag)
	fmt.Fprintln(out)
	ui.Header(out, "Relationships", noColorFlag)

	table := ui.NewTable(out, noColorFlag, "DEPENDENT", "PRINCIPAL", "KEY", "CARDINALITY", "ON DELETE", "SOURCE")
	for _, rel := range rels {
		key := ""
		switch {
		case rel.ForeignKey != nil:
			key = rel.ForeignKey.Name
		case rel.Join != nil:
			key = "via " + rel.Join.Name
		}
		source := "explicit"
		if rel.Convention {
			source = "convention"
		}
		table.AddRow(rel.Dependent.Name, rel.Principal.Name, key,
			rel.Cardinality.String(), rel.OnDelete.String(), source)
	}
	if table.Len() == 0 {
		fmt.Fprintln(out, "none")
	} else {
		table.Render()
	}

	if cycles := model.Cycles(); len(cycles) > 0 {
		fmt.Fprintln(out)
		for _, cycle := range cycles {
			ui.WriteError(out, ui.ErrorOptions{
				Level:   ui.ErrorLevelWarning,
				Context: "cycle",
				Problem: strings.Join(cycle, " -> "),
				Hint:    "Rows in a cycle need a nullable foreign key to be inserted",
				NoColor: noColorFlag,
			})
		}
	}

	return nil
}

// NewOrderCommand creates the order command
func NewOrderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the insert order of entities",
		Long: `Print entities so that every principal comes before its dependents,
with the principals each entity references. Self references are ignored.
Fails when the model has a cycle.`,
		Args: cobra.NoArgs,
		RunE: runOrder,
	}
}

func runOrder(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	report := e.model.Graph().Analyze()
	if len(report.Cycles) > 0 {
		_, err := e.model.DependencyOrder()
		return err
	}

	ui.List(cmd.OutOrStdout(), annotate(e.model, report), noColorFlag)
	return nil
}

// annotate marks synthesized join entities and lists the principals of
// each entity
func annotate(model *schema.FrozenModel, report *schema.DependencyReport) []string {
	items := make([]string, len(report.Order))
	for i, name := range report.Order {
		items[i] = name
		if entity, err := model.Lookup(name); err == nil && entity.Synthesized {
			items[i] += " (join)"
		}
		if deps := report.Dependencies[name]; len(deps) > 0 {
			items[i] += " (depends on: " + strings.Join(deps, ", ") + ")"
		}
	}
	return items
}

package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// Global flags
var (
	modelFlag   string
	noColorFlag bool
	verboseFlag bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ormcore",
		Short: "Entity model, relationship and fetch plan tooling",
		Long: color.CyanString(`ormcore - entity model inspection

Loads an entity model from a YAML file, resolves the relationships
between entities and freezes it into a read-only model.

Commands:
  • validate       check the model and list its relationships
  • order          print the order in which rows can be inserted
  • plan           show the batched fetches for a projection
  • check-delete   show what deleting a row implies for its dependents`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model file (overrides model_file in ormcore.yml)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log at debug level")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewOrderCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewCheckDeleteCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the ormcore version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)
			if noColorFlag {
				titleColor.DisableColor()
				valueColor.DisableColor()
			}

			out := cmd.OutOrStdout()
			for _, row := range [][2]string{
				{"ormcore version: ", Version},
				{"Git commit: ", GitCommit},
				{"Build date: ", BuildDate},
				{"Go version: ", goVer},
			} {
				titleColor.Fprint(out, row[0])
				valueColor.Fprintln(out, row[1])
			}
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

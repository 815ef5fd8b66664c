package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(timetableCmd, substitutionsCmd, cancellationsCmd)
}

var timetableCmd = &cobra.Command{
	Use:   "timetable [today|tomorrow|YYYY-MM-DD]",
	Short: "Show the lessons of a day.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lessons, err := api.Timetable(cmd.Context(), dayArg(args))
		if err != nil {
			return err
		}
		renderLessons(os.Stdout, lessons)
		return nil
	},
}

var substitutionsCmd = &cobra.Command{
	Use:   "substitutions [today|tomorrow|YYYY-MM-DD]",
	Short: "Show the substitutions and cancellations of a day.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := api.Substitutions(cmd.Context(), dayArg(args))
		if err != nil {
			return err
		}
		renderSubstitutions(os.Stdout, subs)
		return nil
	},
}

var cancellationsCmd = &cobra.Command{
	Use:   "cancellations [today|tomorrow|YYYY-MM-DD]",
	Short: "Show the cancelled lessons of a day.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lessons, err := api.Cancellations(cmd.Context(), dayArg(args))
		if err != nil {
			return err
		}
		renderLessons(os.Stdout, lessons)
		return nil
	},
}

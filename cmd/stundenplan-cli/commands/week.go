package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(weekCmd, invalidateCmd)
}

var weekCmd = &cobra.Command{
	Use:   "week [YYYY-MM-DD]",
	Short: "Show every day of the week containing a date.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := ""
		if len(args) > 0 {
			date = args[0]
		}
		week, err := api.Week(cmd.Context(), date)
		if err != nil {
			return err
		}
		renderWeek(os.Stdout, week)
		return nil
	},
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [prefix]",
	Short: "Drop cached entries on the server, every category when no prefix is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		removed, err := api.Invalidate(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d entries\n", removed)
		return nil
	},
}

package commands

import (
	"context"
	"fmt"
	"os"
	"stundenplan-backend/internal/client"
	"stundenplan-backend/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	serverUrl string
	apiKey    string
	verbose   bool
)

var api client.Client

var rootCmd = &cobra.Command{
	Use:   "stundenplan-cli",
	Short: "stundenplan-cli shows the timetable served by a stundenplan server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var tel telemetry.API
		if verbose {
			telemetry.InitSlog(true)
			tel = telemetry.SlogAPI{}
		}
		api = client.New(serverUrl, apiKey, tel)
	},
}

func envOr(name, fallback string) string {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverUrl, "server", envOr("STUNDENPLAN_SERVER", "http://localhost:8000"), "Base url of the stundenplan server.")
	flags.StringVar(&apiKey, "key", envOr("STUNDENPLAN_API_KEY", ""), "Api key sent as X-API-Key.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every request.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dayArg(args []string) string {
	if len(args) == 0 {
		return "today"
	}
	return args[0]
}

package main

import (
	"context"
	"stundenplan-backend/cmd/stundenplan-cli/commands"
	"stundenplan-backend/internal/components/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	commands.ExecuteContext(context.Background())
}

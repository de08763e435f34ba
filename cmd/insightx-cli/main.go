package main

import (
	"context"

	"github.com/use-agent/insightx/cmd/insightx-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}

// Command agentotel translates coding-assistant lifecycle events into
// OpenTelemetry metrics and log events.
package main

import (
	"os"

	"github.com/steveyegge/agentotel/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

// main.go — macrorun CLI entry point. Grounded on the teacher's
// cmd/gasoline-cmd/main.go for the top-level dispatch shape, but built on
// cobra+viper (as joestump-claude-ops/cmd/claudeops does) since the rest of
// this repo's ambient stack already binds config through internal/config's
// viper-backed loader.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

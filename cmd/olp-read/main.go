// Command olp-read is a thin CLI over pkg/versioned, mirroring the
// teacher's cmd/uplink-style cobra binary: subcommands bind viper-loaded
// configuration and call straight into the SDK façade.
package main

import (
	"fmt"
	"os"

	"github.com/heremaps/here-data-sdk-go/cmd/olp-read/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

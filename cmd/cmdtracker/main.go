// Command cmdtracker runs persist and replicate commands against local
// storage tiers and serves their history over HTTP.
package main

import (
	"os"

	"github.com/pterm/pterm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

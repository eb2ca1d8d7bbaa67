package main

import (
	"fmt"
	"os"

	"github.com/autopeer-io/robofleet/cmd/robofleetctl/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

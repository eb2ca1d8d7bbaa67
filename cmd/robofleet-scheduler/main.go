package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/robofleet/cmd/robofleet-scheduler/app"
)

func main() {
	app.NewApp().Run()
}

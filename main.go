package main

import (
	_ "go.uber.org/automaxprocs"

	"metricwatch/internal/commands"
)

func main() {
	commands.Execute()
}

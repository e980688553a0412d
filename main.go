package main

import (
	"TrackForge/cmd"
)

func main() {
	cmd.Execute()
}

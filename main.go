// main.go
//
// Minimal entry point that delegates CLI handling to the Cobra root command
// in cmd/root.go. A .env file, if present, seeds the SIMLINK_* environment
// variables before flags are parsed.

package main

import (
	"github.com/joho/godotenv"

	"github.com/simlink/simlink/cmd"
)

func main() {
	godotenv.Load()
	cmd.Execute()
}

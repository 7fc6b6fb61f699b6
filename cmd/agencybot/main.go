package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/agencybot/internal/app"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}

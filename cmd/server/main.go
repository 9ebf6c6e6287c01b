// Package main is the entry point for the coverage API server.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	loadLocalEnv()

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found; relying on existing environment")
	}
}

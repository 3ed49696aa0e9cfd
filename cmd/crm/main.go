// Command crm runs the CRM backend.
//
//	crm serve     start the HTTP API (and task automation when enabled)
//	crm migrate   create or update the database schema and exit
//	crm sweep     run every task rule once and exit
//
// Configuration comes from the environment, optionally seeded from a .env
// file in the working directory.
//
//	@title			CRM Backend API
//	@version		1.0
//	@description	Customer records, duplicate detection, merging, orders, interactions and tasks.
//	@BasePath		/api/v1
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-crm-backend/docs"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("crm")
		os.Exit(1)
	}
}

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/RishiKendai/labcheck/internal/configs/env"
	"github.com/RishiKendai/labcheck/internal/logger"
	"github.com/RishiKendai/labcheck/migrations"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	logger.Init(env.GetEnv("LOG_LEVEL", "info"))

	dbPath := flag.String("db", env.GetEnv("DATABASE_PATH", "./data/reports.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(migrations.Logger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal().Err(err).Msg("Failed to set dialect")
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatal().Str("command", cmd).Msg("Unknown command")
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("Migration failed")
	}
}

// Command migrate applies the embedded schema migrations to the bot's
// sqlite database.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"watchbot/migrations"
)

const defaultDBPath = "./data/watchbot.db"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [-db path] <command>

Applies the schema migrations bundled with the bot. The database path
defaults to DATABASE_PATH, then %s.

Commands:
  up       apply all pending migrations
  up-one   apply the next pending migration
  down     roll back the most recent migration
  redo     roll back and re-apply the most recent migration
  status   print the status of every migration
  version  print the current schema version
  reset    roll back everything
`, defaultDBPath)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("migrate: ")

	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", defaultDBPath), "path to sqlite database")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}

	if err := run(flag.Arg(0), *dbPath); err != nil {
		log.Fatal(err)
	}
}

func run(cmd, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "redo":
		err = goose.Redo(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"sentinal-media/config"
	"sentinal-media/migrations"

	"github.com/golang-migrate/migrate/v4"
)

const usage = `
Sentinal Media - Database CLI Tool

Usage:
  migrate [command] [args]

Commands:
  up            Apply all pending migrations
  down          Roll back the last migration
  down-all      Roll back every migration (DANGEROUS)
  status        Show the current schema version
  force VERSION Mark VERSION as applied without running it

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go force 1
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	m, err := migrations.New(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer m.Close()

	switch command := flag.Arg(0); command {
	case "up":
		log.Println("🚀 Running migrations UP...")
		check(m.Up())
		log.Println("✅ Migrations completed successfully!")
	case "down":
		log.Println("⬇️  Rolling back one migration...")
		check(m.Steps(-1))
		log.Println("✅ Rollback completed successfully!")
	case "down-all":
		log.Println("⚠️  Rolling back ALL migrations...")
		check(m.Down())
		log.Println("✅ Rollback completed successfully!")
	case "status":
		showStatus(m)
	case "force":
		if flag.NArg() < 2 {
			log.Fatal("❌ force requires a version")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("❌ Invalid version %q", flag.Arg(1))
		}
		check(m.Force(version))
		log.Printf("✅ Schema version forced to %d", version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func check(err error) {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return
	}
	log.Fatalf("❌ Migration failed: %v", err)
}

func showStatus(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Println("🔍 No migrations applied yet")
		return
	}
	if err != nil {
		log.Fatalf("❌ Failed to read schema version: %v", err)
	}
	if dirty {
		log.Printf("⚠️  Schema version %d is dirty, fix it and run force", version)
		return
	}
	log.Printf("✅ Schema version: %d", version)
}

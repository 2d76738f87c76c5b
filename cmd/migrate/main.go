// Command migrate applies or rolls back schema migrations outside the server.
//
//	migrate up       apply all pending migrations
//	migrate down     roll back the last migration
//	migrate version  print the current schema version
package main

import (
	"fmt"
	"os"

	"vizspace/internal/config"
	"vizspace/internal/database"

	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|version")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	path := database.MigrationsPath()
	log := logrus.WithField("migrations_path", path)

	switch os.Args[1] {
	case "up":
		if err := db.MigrateUp(path); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
	case "down":
		if err := db.MigrateDown(path); err != nil {
			log.WithError(err).Fatal("failed to roll back migration")
		}
	case "version":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}

	version, dirty, err := db.MigrateVersion(path)
	if err != nil {
		log.WithError(err).Fatal("failed to get migration version")
	}
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("schema version")
}

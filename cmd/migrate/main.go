package main

import (
	"flag"
	"log"

	"studysprint/backend/internal/config"
	"studysprint/backend/internal/db"
	"studysprint/backend/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir, zlog); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	zlog.Info("migrations applied successfully")
}

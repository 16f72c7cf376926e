// Command seed loads the demo network into MySQL and, when JWT_SECRET is
// set, prints one short-lived access token per role for trying the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/segment-reservation/internal/config"
	"github.com/iliyamo/segment-reservation/internal/database"
	"github.com/iliyamo/segment-reservation/internal/domain"
	"github.com/iliyamo/segment-reservation/internal/repository"
	"github.com/iliyamo/segment-reservation/internal/seed"
	"github.com/iliyamo/segment-reservation/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}
	cfg := config.LoadDatabase()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if _, err := database.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := seed.Apply(ctx, repository.NewTopologyRepo(db), seed.Demo, time.Now())
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("route %d %q, bus %d (%d seats), %d fares\n", res.Route.ID, res.Route.Name, res.Bus.ID, res.Bus.Capacity, res.Fares)
	for _, t := range res.Trips {
		fmt.Printf("trip %d departs %s\n", t.ID, t.DepartureAt.Format(time.RFC3339))
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return
	}
	roles := []domain.Role{domain.RolePassenger, domain.RoleClerk, domain.RoleDriver, domain.RoleDispatcher, domain.RoleAdmin}
	for i, role := range roles {
		tok, err := utils.NewAccessToken(secret, uint64(i+1), role, 12*time.Hour)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		fmt.Printf("%-10s user=%d %s\n", role, i+1, tok.Token)
	}
}

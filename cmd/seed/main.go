// Command seed provisions the default access-control catalog: the permission
// set, the built-in roles with their grants, and the root administrator
// account. Safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"dipdive.org/internal/auth"
	"dipdive.org/internal/obs"
	"dipdive.org/internal/rbac"
	"dipdive.org/internal/store/memory"
	"dipdive.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn       = flag.String("dsn", os.Getenv("DIPDIVE_PG_DSN"), "PostgreSQL DSN")
		rootEmail = flag.String("root-email", "", "Override the root account email")
		dryRun    = flag.Bool("memory", false, "Seed an in-memory store instead of PostgreSQL (dry run)")
	)
	flag.Parse()

	if *dsn == "" && !*dryRun {
		log.Fatal("missing DSN: provide via -dsn or DIPDIVE_PG_DSN")
	}
	rootPassword := os.Getenv("DIPDIVE_ROOT_PASSWORD")
	if rootPassword == "" {
		log.Fatal("DIPDIVE_ROOT_PASSWORD is required")
	}

	hash, err := auth.HashPassword(rootPassword)
	if err != nil {
		log.Fatalf("hash root password: %v", err)
	}

	cat := rbac.DefaultCatalog()
	cat.Root.PasswordHash = hash
	if *rootEmail != "" {
		cat.Root.Email = *rootEmail
	}

	var store rbac.Store
	if *dryRun {
		store = memory.New()
	} else {
		pgStore, err := pg.Open(*dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	svc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("service: %v", err)
	}
	if err := svc.Seed(ctx, cat); err != nil {
		log.Fatalf("seed: %v", err)
	}

	obs.LogEvent("info", "catalog seeded", map[string]any{
		"permissions": len(cat.Permissions),
		"roles":       len(cat.Roles),
		"root_email":  cat.Root.Email,
		"dry_run":     *dryRun,
	})
}

// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/security"
	subjectdomain "authcore/internal/subject/domain"
	subjectrepo "authcore/internal/subject/repository"
)

const (
	adminEmail  = "admin@example.com"
	memberEmail = "member@example.com"
	devPassword = "password-for-dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.Env == "production" {
		log.Fatal("seed must not run against production")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	subjects := subjectrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := subjects.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (admin@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewPasswordHasher(cfg.AuthPepper, security.Argon2Params{
		MemoryKiB:   uint32(cfg.Argon2MemoryKiB),
		Iterations:  uint32(cfg.Argon2Iterations),
		Parallelism: uint8(cfg.Argon2Parallelism),
	})
	passwordHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	for _, seed := range []struct {
		email string
		roles []string
	}{
		{adminEmail, []string{"admin"}},
		{memberEmail, nil},
	} {
		subject := &subjectdomain.Subject{
			ID:        uuid.New().String(),
			Email:     seed.email,
			Status:    subjectdomain.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := subjects.Create(ctx, subject); err != nil {
			log.Fatalf("create %s: %v", seed.email, err)
		}
		if err := subjects.UpsertCredential(ctx, &subjectdomain.Credential{
			SubjectID: subject.ID,
			Hash:      passwordHash,
			Algorithm: "argon2id",
			UpdatedAt: now,
		}); err != nil {
			log.Fatalf("credential %s: %v", seed.email, err)
		}
		for _, role := range seed.roles {
			if err := subjects.GrantRole(ctx, subject.ID, role); err != nil {
				log.Fatalf("grant %s to %s: %v", role, seed.email, err)
			}
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Admin login: %s / %s\n", adminEmail, devPassword)
	fmt.Printf("Member login: %s / %s\n", memberEmail, devPassword)
}

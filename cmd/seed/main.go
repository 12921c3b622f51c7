// Command seed inserts demo end-users (with phone numbers for the staff
// lookup) and an open thread for each into the Postgres store.
package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/database"
	"github.com/vthuan-dev/bufforder-sub001/internal/logger"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New()
	log, err := logger.New(cfg.Log.Level, "console")
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	users := []struct {
		Name     string
		Phone    string
		Password string
	}{
		{"Nguyen Van An", "0901000001", "password123"},
		{"Tran Thi Binh", "0901000002", "password123"},
		{"Le Van Cuong", "0901000003", "password123"},
	}

	st := store.NewPostgresStore(db)
	for _, u := range users {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to hash password")
		}

		var id string
		err = db.QueryRow(ctx, `
			INSERT INTO users (name, phone, password_hash, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, u.Name, u.Phone, string(hashedPassword), time.Now()).Scan(&id)
		if err != nil {
			log.Error().Err(err).Str("phone", u.Phone).Msg("failed to create user")
			continue
		}

		if _, err := st.FindOpenThread(ctx, id); err == nil {
			log.Info().Str("user_id", id).Str("phone", u.Phone).Msg("user exists with open thread")
			continue
		}
		now := time.Now()
		err = st.CreateThread(ctx, &models.Thread{
			ID:        uuid.NewString(),
			UserID:    id,
			IPAddress: "127.0.0.1",
			Status:    models.ThreadOpen,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("failed to open thread")
			continue
		}
		log.Info().Str("user_id", id).Str("phone", u.Phone).Msg("user seeded")
	}

	log.Info().Msg("seeding completed")
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/db"
	"github.com/hackgods/consultation-scheduling/internal/logger"
)

type clinicHours struct {
	opening, closing int
}

var hourOptions = []clinicHours{
	{9 * 60, 17 * 60},
	{8 * 60, 16 * 60},
	{10 * 60, 18 * 60},
	{9*60 + 30, 19 * 60},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env, cfg.LogLevel, "seed")
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedClinics(context.Background(), pool, faker, 40, log); err != nil {
		log.Fatal().Err(err).Msg("seed clinics")
	}
	if err := seedPatients(context.Background(), pool, faker, 5000, log); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

// seedClinics gives every doctor one or two clinics with their own hours.
func seedClinics(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors int, log zerolog.Logger) error {
	log.Info().Int("doctors", doctors).Msg("seeding clinics")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	clinics := 0
	for i := 0; i < doctors; i++ {
		doctorID := uuid.New()
		for c := 0; c < faker.Number(1, 2); c++ {
			hours := hourOptions[faker.Number(0, len(hourOptions)-1)]
			fee := float64(faker.Number(3, 20) * 100)

			_, err := tx.Exec(ctx, `
				INSERT INTO clinics (id, doctor_id, name, opening_time, closing_time, consultation_fee, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), doctorID, faker.Company()+" Clinic",
				clocktime.MinutesTo12h(hours.opening), clocktime.MinutesTo12h(hours.closing), fee)
			if err != nil {
				return err
			}
			clinics++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("clinics", clinics).Msg("clinics seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, log zerolog.Logger) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	log.Info().Msg("patients seeded")
	return nil
}

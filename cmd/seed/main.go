package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/availability"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/user"
	"github.com/hackgods/clinic-appointments/pkg/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var insurers = []string{"OSDE", "Swiss Medical", "Galeno", "Medife", "IOMA", "Private"}

// seedAdmin is the system actor used to create every seeded profile.
var seedAdmin = user.Actor{ID: uuid.Nil, Role: user.RoleAdmin}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	// Seeding goes through the user service so every profile passes the
	// same validation as one created over the API.
	svc := user.NewService(
		user.NewPgRepository(pool),
		audit.NewRecorder(audit.NewPgRepository(pool), logger),
		logger,
	)

	if seed := getInt("SEED", 0); seed != 0 {
		gofakeit.GlobalFaker = gofakeit.New(uint64(seed))
	}

	s := &seeder{svc: svc, logger: logger}
	bg := context.Background()

	if err := s.admin(bg, getEnv("SEED_ADMIN_EMAIL", "admin@clinic.test")); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	if err := s.specialists(bg, getInt("SEED_SPECIALISTS", 20)); err != nil {
		logger.Fatal().Err(err).Msg("seed specialists")
	}
	if err := s.patients(bg, getInt("SEED_PATIENTS", 500)); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

type seeder struct {
	svc    *user.Service
	logger zerolog.Logger
	// nationalID is sequential within a run and prefixed by the clock.
	nationalID int
}

func (s *seeder) nextNationalID() string {
	s.nationalID++
	return fmt.Sprintf("%d%06d", time.Now().Unix()%1000, s.nationalID)
}

func (s *seeder) admin(ctx context.Context, email string) error {
	u, err := s.svc.CreateByAdmin(ctx, seedAdmin, user.Identity{Email: email, EmailVerified: true}, user.Profile{
		Role:       user.RoleAdmin,
		FirstName:  "Clinic",
		LastName:   "Administrator",
		Age:        40,
		NationalID: s.nextNationalID(),
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("email", u.Email).Msg("admin seeded")
	return nil
}

func (s *seeder) specialists(ctx context.Context, count int) error {
	s.logger.Info().Int("count", count).Msg("seeding specialists")

	for i := 0; i < count; i++ {
		offered := pickSpecialties()

		u, err := s.svc.CreateByAdmin(ctx, seedAdmin, user.Identity{
			Email:         gofakeit.Email(),
			EmailVerified: true,
		}, user.Profile{
			Role:        user.RoleSpecialist,
			FirstName:   gofakeit.FirstName(),
			LastName:    gofakeit.LastName(),
			Age:         gofakeit.Number(28, 70),
			NationalID:  s.nextNationalID(),
			Specialties: offered,
		})
		if err != nil {
			return fmt.Errorf("specialist %d: %w", i, err)
		}

		for _, specialty := range offered {
			if err := s.svc.ReplaceAvailability(ctx, seedAdmin, u.ID, specialty, weeklyRules()); err != nil {
				return fmt.Errorf("availability for %s: %w", u.ID, err)
			}
		}
	}

	s.logger.Info().Msg("specialists seeded")
	return nil
}

func (s *seeder) patients(ctx context.Context, count int) error {
	s.logger.Info().Int("count", count).Msg("seeding patients")

	for i := 0; i < count; i++ {
		_, err := s.svc.CreateByAdmin(ctx, seedAdmin, user.Identity{
			Email:         gofakeit.Email(),
			EmailVerified: true,
		}, user.Profile{
			Role:            user.RolePatient,
			FirstName:       gofakeit.FirstName(),
			LastName:        gofakeit.LastName(),
			Age:             gofakeit.Number(1, 95),
			NationalID:      s.nextNationalID(),
			HealthInsurance: insurers[gofakeit.Number(0, len(insurers)-1)],
		})
		if err != nil {
			return fmt.Errorf("patient %d: %w", i, err)
		}

		if (i+1)%100 == 0 {
			s.logger.Info().Int("done", i+1).Int("total", count).Msg("patients seeded")
		}
	}

	s.logger.Info().Msg("patients seeded")
	return nil
}

func pickSpecialties() []string {
	n := gofakeit.Number(1, 2)
	picked := make([]string, 0, n)
	seen := map[string]bool{}
	for len(picked) < n {
		s := specialties[gofakeit.Number(0, len(specialties)-1)]
		if !seen[s] {
			seen[s] = true
			picked = append(picked, s)
		}
	}
	return picked
}

// weeklyRules gives a specialty two or three weekday windows, morning or afternoon.
func weeklyRules() []availability.Rule {
	windows := [][2]string{{"09:00", "12:00"}, {"14:00", "17:30"}}

	days := gofakeit.Number(2, 3)
	used := map[time.Weekday]bool{}
	rules := make([]availability.Rule, 0, days)
	for len(rules) < days {
		day := time.Weekday(gofakeit.Number(int(time.Monday), int(time.Friday)))
		if used[day] {
			continue
		}
		used[day] = true
		w := windows[gofakeit.Number(0, len(windows)-1)]
		rules = append(rules, availability.Rule{DayOfWeek: day, Start: w[0], End: w[1]})
	}
	return rules
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

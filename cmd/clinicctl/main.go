package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointments/internal/audit"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/booking"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/report"
	"github.com/hackgods/clinic-appointments/internal/user"
	"github.com/hackgods/clinic-appointments/pkg/logging"
)

// operator is the actor behind every clinicctl change. It has admin rights
// and no user row.
var operator = user.Actor{ID: uuid.Nil, Role: user.RoleAdmin}

type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	users   *user.Service
	reports *report.Service
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Administer the clinic appointments database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.AddCommand(a.usersCmd())
	rootCmd.AddCommand(a.reportCmd())
	rootCmd.AddCommand(a.tokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel).With().Str("service", "clinicctl").Logger()

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	recorder := audit.NewRecorder(audit.NewPgRepository(a.pool), a.logger)
	a.users = user.NewService(user.NewPgRepository(a.pool), recorder, a.logger)
	a.reports = report.NewService(booking.NewPgRepository(a.pool), recorder, cfg.Location)
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and manage users",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users, optionally filtered by role",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			users, err := a.users.List(cmd.Context(), user.Role(role))
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("%s  %-10s  enabled=%-5t  %s <%s>\n", u.ID, u.Role, u.Enabled, u.FullName(), u.Email)
			}
			return nil
		},
	}
	listCmd.Flags().String("role", "", "patient, specialist or admin")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <user-id> <role>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.users.UpdateRole(cmd.Context(), operator, id, user.Role(args[1])); err != nil {
				return err
			}
			fmt.Printf("role of %s set to %s\n", id, args[1])
			return nil
		},
	})

	for _, enabled := range []bool{true, false} {
		use, short := "enable <specialist-id>", "Let a specialist sign in and take bookings"
		if !enabled {
			use, short = "disable <specialist-id>", "Block a specialist from signing in and taking bookings"
		}

		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.users.SetEnabled(cmd.Context(), operator, id, enabled); err != nil {
					return err
				}
				fmt.Printf("specialist %s enabled=%t\n", id, enabled)
				return nil
			},
		})
	}

	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print administrator reports",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "specialties",
		Short: "Bookings per specialty",
		RunE: func(cmd *cobra.Command, args []string) error {
			slices, err := a.reports.BySpecialty(cmd.Context(), operator)
			if err != nil {
				return err
			}
			for _, s := range slices {
				fmt.Printf("%-20s %5d  %6.2f%%\n", s.Label, s.Value, s.Percent)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "weekdays",
		Short: "Bookings per weekday",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := a.reports.ByWeekday(cmd.Context(), operator)
			if err != nil {
				return err
			}
			return printJSON(bars)
		},
	})

	loginsCmd := &cobra.Command{
		Use:   "logins",
		Short: "Recent sign-ins",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asCSV, _ := cmd.Flags().GetBool("csv")

			logins, err := a.reports.Logins(cmd.Context(), operator, limit, 0)
			if err != nil {
				return err
			}
			if asCSV {
				return a.reports.WriteLoginsCSV(os.Stdout, logins)
			}
			return printJSON(logins)
		},
	}
	loginsCmd.Flags().Int("limit", 100, "maximum rows")
	loginsCmd.Flags().Bool("csv", false, "write CSV instead of JSON")
	cmd.AddCommand(loginsCmd)

	return cmd
}

// tokenCmd signs a bearer token with the configured secret. It stands in for
// the identity provider on local setups.
func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			email, _ := cmd.Flags().GetString("email")

			token, err := auth.Sign(a.cfg.JWTSecret, user.Identity{ID: id, Email: email, EmailVerified: true}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().String("email", "", "email claim")
	return cmd
}

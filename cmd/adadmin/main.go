package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/adapter/repo"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
)

const usage = `usage:
  adadmin balance  -user <id>
  adadmin credit   -user <id> -amount <n> [-reason text]
  adadmin override -ad <id> -status <PENDING|PROCESSING|COMPLETED|FAILED|CANCELLED> [-message text]`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		exitWithError(errors.New(usage))
	}
	cmd, args := os.Args[1], os.Args[2:]

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "adadmin").Str("action", cmd).Logger()
	runner := infra.NewSQLRunner(pool, logger)

	switch cmd {
	case "balance":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("user", "", "user ID")
		_ = fs.Parse(args)
		requireFlag("-user", *user)
		balance, err := repo.NewCreditLedger(runner).Balance(ctx, *user)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("user %s balance=%d\n", *user, balance)

	case "credit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("user", "", "user ID")
		amount := fs.Int("amount", 0, "credits to add")
		reason := fs.String("reason", "manual top-up", "ledger reason")
		_ = fs.Parse(args)
		requireFlag("-user", *user)
		if *amount <= 0 {
			exitWithError(errors.New("-amount must be positive"))
		}
		ledger := repo.NewCreditLedger(runner)
		if err := ledger.Add(ctx, *user, *amount, *reason); err != nil {
			exitWithError(err)
		}
		balance, err := ledger.Balance(ctx, *user)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("user %s credited %d, balance=%d\n", *user, *amount, balance)

	case "override":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		adID := fs.String("ad", "", "ad ID")
		statusFlag := fs.String("status", "", "status to force")
		message := fs.String("message", "", "status message")
		_ = fs.Parse(args)
		requireFlag("-ad", *adID)
		status, err := parseStatus(*statusFlag)
		if err != nil {
			exitWithError(err)
		}
		ad, err := repo.NewAdRepository(runner).Override(ctx, *adID, status, *message)
		if err != nil {
			exitWithError(fmt.Errorf("override ad: %w", err))
		}
		// Open event streams on any API instance listening through Postgres see the change.
		relay := events.NewPgRelay(pool, runner, events.NewHub(logger), logger)
		relay.Publish(ctx, ad.ID, events.FromAd(ad))
		fmt.Printf("ad %s is now %s\n", ad.ID, ad.Status)

	default:
		exitWithError(fmt.Errorf("unknown command %q\n%s", cmd, usage))
	}
}

func parseStatus(v string) (domain.AdStatus, error) {
	status := domain.AdStatus(strings.ToUpper(strings.TrimSpace(v)))
	switch status {
	case domain.AdStatusPending, domain.AdStatusProcessing, domain.AdStatusCompleted,
		domain.AdStatusFailed, domain.AdStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unsupported status %q", v)
	}
}

func requireFlag(name, value string) {
	if strings.TrimSpace(value) == "" {
		exitWithError(fmt.Errorf("%s is required", name))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// Команда authctl включает и отключает учётные записи:
//
//	authctl deactivate -email user@example.com
//	authctl activate -email user@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/asterscholar-auth/internal/config"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
	"github.com/magabrotheeeer/asterscholar-auth/internal/storage/repository"
)

var errUsage = errors.New("usage: authctl deactivate|activate -email <email>")

// accountSwitcher меняет признак is_active учётной записи.
type accountSwitcher interface {
	Deactivate(ctx context.Context, email string) error
	Activate(ctx context.Context, email string) error
}

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadAdmin()
	logger := sl.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	db, err := repository.New(pingCtx, cfg.StorageConnectionString)
	cancel()
	if err != nil {
		logger.Error("failed to connect storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// токены и письма здесь не нужны
	svc := auth.New(logger, db, nil, nil, config.JWTToken{})
	if err = run(ctx, os.Args[1:], svc, os.Stdout); err != nil {
		logger.Error("authctl failed", sl.Err(err))
		_ = db.Close()
		os.Exit(2)
	}
}

func run(ctx context.Context, args []string, svc accountSwitcher, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "email учётной записи")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *email == "" {
		return errUsage
	}

	var err error
	switch args[0] {
	case "deactivate":
		err = svc.Deactivate(ctx, *email)
	case "activate":
		err = svc.Activate(ctx, *email)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "%s: %s\n", args[0], *email)
	return nil
}

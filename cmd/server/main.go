package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-code-relay/internal/config"
	"github.com/jrsteele09/go-code-relay/relay"
	"github.com/jrsteele09/go-code-relay/relay/pendingrepo"
	"github.com/jrsteele09/go-code-relay/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogger(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := newRepo(ctx, c)
	if err != nil {
		return err
	}
	defer closeRepo()

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, relay.NewService(repo, c)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listenAndServe(srv) })
	g.Go(func() error { return pendingrepo.NewCleanupManager(repo, c.GetCleanupInterval()).Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv)
	})
	return g.Wait()
}

func newRepo(ctx context.Context, c config.Config) (pendingrepo.Repo, func(), error) {
	switch c.GetStoreKind() {
	case config.StoreSlot:
		log.Info().Msg("Using single-slot pending authorization store")
		return pendingrepo.NewSlotRepo(), func() {}, nil
	case config.StoreFirestore:
		repo, err := pendingrepo.NewFirestoreRepo(ctx, c.GetProjectID(), c.GetFirestoreDatabase(), c.GetFirestoreCollection())
		if err != nil {
			return nil, nil, fmt.Errorf("firestore store: %w", err)
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Firestore client")
			}
		}, nil
	default:
		log.Info().Msg("Using in-memory pending authorization store")
		return pendingrepo.NewInMemoryRepo(), func() {}, nil
	}
}

func setupLogger(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

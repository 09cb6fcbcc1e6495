// Command relaypoll runs the device side of a relayed authorization code
// flow: it prints the authorization URL, waits for the relay to receive the
// code and exchanges it for a token.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jrsteele09/go-code-relay/relayclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type pollEnv struct {
	RelayURL     string        `env:"RELAYPOLL_RELAY_URL" envDefault:"http://localhost:8080"`
	ClientID     string        `env:"RELAYPOLL_CLIENT_ID"`
	ClientSecret string        `env:"RELAYPOLL_CLIENT_SECRET"`
	AuthURL      string        `env:"RELAYPOLL_AUTH_URL" envDefault:"https://accounts.spotify.com/authorize"`
	TokenURL     string        `env:"RELAYPOLL_TOKEN_URL" envDefault:"https://accounts.spotify.com/api/token"`
	Scopes       string        `env:"RELAYPOLL_SCOPES"`
	Method       string        `env:"RELAYPOLL_WITHDRAW_METHOD" envDefault:"POST"`
	Interval     time.Duration `env:"RELAYPOLL_INTERVAL" envDefault:"2s"`
	Timeout      time.Duration `env:"RELAYPOLL_TIMEOUT" envDefault:"5m"`
}

func main() {
	var cfg pollEnv
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "relay base URL")
	flag.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "OAuth client ID")
	flag.StringVar(&cfg.AuthURL, "auth-url", cfg.AuthURL, "provider authorization endpoint")
	flag.StringVar(&cfg.TokenURL, "token-url", cfg.TokenURL, "provider token endpoint")
	flag.StringVar(&cfg.Scopes, "scopes", cfg.Scopes, "space separated scopes")
	flag.StringVar(&cfg.Method, "withdraw-method", cfg.Method, "verb the relay expects for withdrawals (GET or POST)")
	flag.DurationVar(&cfg.Interval, "interval", cfg.Interval, "poll interval")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "give up after this long")
	verbose := flag.Bool("v", false, "verbose output")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if cfg.ClientID == "" {
		fmt.Fprintln(os.Stderr, "Error: -client-id or RELAYPOLL_CLIENT_ID is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelTimeout()

	relayURL := strings.TrimRight(cfg.RelayURL, "/")
	flow := &relayclient.Flow{
		OAuth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  relayURL + "/api/store",
			Scopes:       strings.Fields(cfg.Scopes),
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		},
		Relay: relayclient.New(relayURL,
			relayclient.WithPollInterval(cfg.Interval),
			relayclient.WithWithdrawMethod(cfg.Method),
		),
	}

	session := flow.Start()
	fmt.Fprintf(os.Stderr, "Open this URL to authorize:\n\n  %s\n\n", session.AuthURL)
	log.Info().Str("state", session.State).Msg("Waiting for the relay to receive the code")

	token, err := flow.Complete(ctx, session)
	if err != nil {
		log.Error().Err(err).Msg("Authorization failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(token)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/fakeapi"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/sessionclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	demoEmail    = "demo@onflix.test"
	demoPassword = "demo-password"
)

type options struct {
	configPath string
	email      string
	password   string
	demo       bool
	requests   int
	logout     bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&opts.email, "email", os.Getenv("ONFLIX_EMAIL"), "account email")
	flag.StringVar(&opts.password, "password", os.Getenv("ONFLIX_PASSWORD"), "account password")
	flag.BoolVar(&opts.demo, "demo", false, "run against an in-process fake API")
	flag.IntVar(&opts.requests, "requests", 5, "number of concurrent content requests")
	flag.BoolVar(&opts.logout, "logout", true, "log out when done")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("Session client failed")
	}
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var api *fakeapi.Server
	if opts.demo {
		var (
			baseURL  string
			shutdown func()
		)
		api, baseURL, shutdown, err = startFakeAPI()
		if err != nil {
			return err
		}
		defer shutdown()
		c = demoConfig{Config: c, baseURL: baseURL}
		opts.email, opts.password = demoEmail, demoPassword
	}

	client, err := sessionclient.New(c)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnSessionEnd(func(cause error) {
		log.Warn().AnErr("cause", cause).Msg("Signed out, please log in again")
	})

	if err := client.Restore(ctx); err != nil {
		log.Err(err).Msg("Could not restore session")
	}
	if _, ok := client.Session(); !ok {
		if opts.email == "" {
			return fmt.Errorf("no stored session: provide -email and -password")
		}
		if _, err := client.Login(ctx, opts.email, opts.password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	client.StartAutoRefresh(ctx)

	sess, _ := client.Session()
	log.Info().
		Str("user", sess.Principal.Email).
		Bool("can_stream", sess.CanStream(session.NowTimeFunc())).
		Time("expires_at", sess.ExpiresAt).
		Msg("Signed in")

	if api != nil {
		// Invalidate the access token so the fetches below share one refresh.
		api.ExpireAccessTokens()
	}
	if err := fetchContent(ctx, client, opts.requests); err != nil {
		return err
	}
	if api != nil {
		log.Info().Int("refresh_calls", api.RefreshCalls()).Msg("Demo finished")
	}

	if opts.logout {
		client.Logout(ctx)
		log.Info().Msg("Logged out")
	}
	return nil
}

// fetchContent requests n titles at once; with an expired token they all
// share a single refresh.
func fetchContent(ctx context.Context, client *sessionclient.Client, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= n; i++ {
		i := i
		g.Go(func() error {
			var title map[string]string
			if err := client.GetJSON(ctx, fmt.Sprintf("/api/v1/content/%d", i), &title); err != nil {
				return fmt.Errorf("content %d: %w", i, err)
			}
			log.Info().Str("id", title["id"]).Str("title", title["title"]).Msg("Fetched content")
			return nil
		})
	}
	return g.Wait()
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// startFakeAPI serves the fake API on a loopback port.
func startFakeAPI() (*fakeapi.Server, string, func(), error) {
	api := fakeapi.New()
	api.AddUser(demoEmail, demoPassword, session.Principal{
		ID:           "demo-user",
		Email:        demoEmail,
		FirstName:    "Demo",
		LastName:     "Viewer",
		Role:         session.RoleUser,
		Subscription: session.SubscriptionActive,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", nil, fmt.Errorf("net.Listen: %w", err)
	}
	server := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("Fake API stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Fake API listening")

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Err(err).Msg("server.Shutdown")
		}
	}
	return api, "http://" + ln.Addr().String(), shutdown, nil
}

// demoConfig points the client at the fake API and keeps the session in memory.
type demoConfig struct {
	config.Config
	baseURL string
}

func (d demoConfig) GetBaseURL() string {
	return d.baseURL
}

func (d demoConfig) GetStorageBackend() config.StorageBackend {
	return config.StorageMemory
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/sks/api"
	"github.com/jmcleod/sks/auth"
	"github.com/jmcleod/sks/internal/util"
	"github.com/jmcleod/sks/storage"
	bboltstorage "github.com/jmcleod/sks/storage/bbolt"
	"github.com/jmcleod/sks/storage/memory"
	pgstorage "github.com/jmcleod/sks/storage/postgres"
	"github.com/jmcleod/sks/token"
)

var (
	serverOpts   serverConfig
	serverEnvErr error
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session key server",
	Long: `Start the session key server.

Every flag defaults to the environment variable named after it with an SKS_
prefix, e.g. --postgres-dsn reads SKS_POSTGRES_DSN. An environment value that
does not parse stops the server.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if serverEnvErr != nil {
			return fmt.Errorf("invalid environment: %w", serverEnvErr)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), serverOpts)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverOpts, serverEnvErr = loadServerEnv()

	f := serverCmd.Flags()
	f.StringVar(&serverOpts.Listen, "listen", serverOpts.Listen, "Address to listen on (empty for all interfaces)")
	f.IntVarP(&serverOpts.Port, "port", "p", serverOpts.Port, "Port to listen on")
	f.StringVar(&serverOpts.DB, "db", serverOpts.DB, "Path to the bbolt database file (empty keeps tokens in memory)")
	f.StringVar(&serverOpts.PostgresDSN, "postgres-dsn", serverOpts.PostgresDSN, "PostgreSQL connection string (overrides --db)")
	f.BoolVar(&serverOpts.Fsync, "fsync", serverOpts.Fsync, "Force every write to stable storage")
	f.BoolVar(&serverOpts.SerializeUsers, "serialize-users", serverOpts.SerializeUsers, "Serialize token mutations per realm and user")
	f.StringVar(&serverOpts.Credentials, "credentials", serverOpts.Credentials, "Path to the YAML credentials file used by /pam_token")
	f.StringVar(&serverOpts.TLSCert, "tls-cert", serverOpts.TLSCert, "Path to TLS certificate file")
	f.StringVar(&serverOpts.TLSKey, "tls-key", serverOpts.TLSKey, "Path to TLS key file")
	f.BoolVar(&serverOpts.TLSSelfSigned, "tls-self-signed", serverOpts.TLSSelfSigned, "Serve TLS with a runtime generated self-signed certificate")
	f.StringVar(&serverOpts.LogFormat, "log-format", serverOpts.LogFormat, "Log format: json or text")
	f.StringVar(&serverOpts.LogLevel, "log-level", serverOpts.LogLevel, "Log level: debug, info, warn or error")
	f.IntVar(&serverOpts.MaxAuthFailures, "max-auth-failures", serverOpts.MaxAuthFailures, "Consecutive credential failures per user and client before throttling (0 disables)")
}

func runServer(ctx context.Context, cfg serverConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing key store", slog.String("error", err.Error()))
		}
	}()

	authenticator, stopReload, err := loadAuthenticator(cfg.Credentials, logger)
	if err != nil {
		return err
	}
	defer stopReload()

	tokens := token.New(store,
		token.WithAuthenticator(authenticator),
		token.WithSerializedUsers(cfg.SerializeUsers),
		token.WithLogger(logger),
	)
	a := api.New(tokens,
		api.WithLogger(logger),
		api.WithMaxAuthFailures(cfg.MaxAuthFailures),
	)

	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Listen, strconv.Itoa(cfg.Port)),
		Handler:           newRouter(a, logger),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(os.Stdout)
	logger.Info("starting server",
		slog.String("addr", server.Addr),
		slog.Bool("tls", tlsConfig != nil),
		slog.Bool("serialize_users", tokens.Serialized()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

func newRouter(a *api.API, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)
	r.Mount("/", a.Router())
	return r
}

// openStore selects the key store backend: PostgreSQL when a DSN is set,
// bbolt when a database path is set, memory otherwise.
func openStore(ctx context.Context, cfg serverConfig, logger *slog.Logger) (storage.KeyStore, error) {
	switch {
	case cfg.PostgresDSN != "":
		store, err := pgstorage.Open(ctx, cfg.PostgresDSN, cfg.Fsync)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres key store: %w", err)
		}
		logger.Info("using postgres key store", slog.Bool("fsync", cfg.Fsync))
		return store, nil
	case cfg.DB != "":
		store, err := bboltstorage.Open(cfg.DB, bboltstorage.Options{Fsync: cfg.Fsync})
		if err != nil {
			return nil, fmt.Errorf("failed to open key store: %w", err)
		}
		logger.Info("using bbolt key store", slog.String("path", store.Path()), slog.Bool("fsync", cfg.Fsync))
		return store, nil
	default:
		logger.Warn("no --db given: tokens are kept in memory and lost on restart")
		return memory.New(), nil
	}
}

// loadAuthenticator loads the credentials file and reloads it on SIGHUP.
// Without a file every credential is denied.
func loadAuthenticator(path string, logger *slog.Logger) (auth.Authenticator, func(), error) {
	if path == "" {
		logger.Warn("no --credentials given: /pam_token denies every request")
		return auth.DenyAll, func() {}, nil
	}
	fa, err := auth.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	logger.Info("loaded credentials", slog.String("path", path), slog.Int("users", fa.Users()))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				if err := fa.Reload(); err != nil {
					logger.Error("reloading credentials", slog.String("error", err.Error()))
					continue
				}
				logger.Info("reloaded credentials", slog.Int("users", fa.Users()))
			case <-stop:
				return
			}
		}
	}()
	return fa, func() {
		signal.Stop(hup)
		close(stop)
	}, nil
}

func loadTLSConfig(cfg serverConfig) (*tls.Config, error) {
	switch {
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	case cfg.TLSCert != "" || cfg.TLSKey != "":
		return nil, errors.New("--tls-cert and --tls-key must be given together")
	case cfg.TLSSelfSigned:
		cert, err := util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	default:
		return nil, nil
	}
}

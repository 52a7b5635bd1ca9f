package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
	"cambria.dev/dashboard/internal/config"
	"cambria.dev/dashboard/internal/httpapi"
	"cambria.dev/dashboard/internal/mail"
	"cambria.dev/dashboard/internal/obs"
	"cambria.dev/dashboard/internal/resetcode"
	"cambria.dev/dashboard/internal/store/memory"
	"cambria.dev/dashboard/internal/store/pg"
	"cambria.dev/dashboard/internal/uploads"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "cambria-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := obs.NewLogger(cfg.Environment, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.Init()
	if cfg.Version != "dev" {
		version = cfg.Version
	}
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	resetBackend, closeReset, err := openResetBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeReset() }()
	ledger, err := resetcode.New(resetBackend, resetcode.WithTTL(cfg.Reset.CodeTTL))
	if err != nil {
		return err
	}

	var mailer auth.Mailer
	if cfg.SMTP.Configured() {
		sender, err := mail.NewSender(mail.Settings{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			CodeTTL:  cfg.Reset.CodeTTL,
		})
		if err != nil {
			return err
		}
		mailer = sender
	} else {
		logger.Warn("smtp not configured; reset codes will not be mailed")
	}

	tokens, err := auth.NewTokens(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, auth.WithTokenIssuer(httpapiIssuer))
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(st.users, tokens, ledger, mailer)
	if err != nil {
		return err
	}
	rbac, err := auth.NewRBACService(st.users, st.perms)
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(st.audit)
	if err != nil {
		return err
	}
	clientSvc, err := clients.NewService(st.clients)
	if err != nil {
		return err
	}
	uploadSvc, err := openUploads(ctx, cfg)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Services{
		Auth:    authSvc,
		RBAC:    rbac,
		Audit:   recorder,
		Clients: clientSvc,
		Uploads: uploadSvc,
	}, st.probe, httpapi.Settings{
		Version:        version,
		CookieName:     cfg.Auth.CookieName,
		CookieSecure:   cfg.Auth.CookieSecure,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustProxy:     cfg.HTTP.TrustProxy,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RateBurst:      cfg.HTTP.RateBurst,
		RatePerSecond:  float64(cfg.HTTP.RatePerSecond),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.HTTP.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.HTTP.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(st.probe)
		health.Register(grpcSrv)
		go health.Run(ctx, 15*time.Second)
		go func() {
			logger.Info("grpc health server starting", zap.String("addr", cfg.HTTP.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

const httpapiIssuer = "cambria-dashboard"

type stores struct {
	users   auth.UserStore
	perms   auth.PermissionStore
	audit   audit.Store
	clients clients.Store
	probe   httpapi.ReadyProbe
	close   func() error
}

// openStores picks the primary store. With no DSN the service runs on the
// mock dataset. A configured database that cannot be reached is fatal.
func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if !cfg.Database.Configured() {
		return openMockStores(cfg)
	}

	db, err := pg.Open(cfg.Database.DSN, pg.PoolSettings{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("database configured but unreachable: %w", err)
	}
	obs.Logger().Info("using postgres store")
	return stores{
		users:   db.Users(),
		perms:   db.Permissions(),
		audit:   db.Audit(),
		clients: db.Clients(),
		probe:   httpapi.ReadyProbe{DB: db},
		close:   db.Close,
	}, nil
}

func openMockStores(cfg *config.Config) (stores, error) {
	password := cfg.Auth.BootstrapPassword
	if password == "" {
		generated, err := randomPassword()
		if err != nil {
			return stores{}, err
		}
		password = generated
		obs.Logger().Warn("generated bootstrap admin password for mock dataset",
			zap.String("email", cfg.Auth.BootstrapEmail),
			zap.String("password", password),
		)
	}
	data, err := memory.NewMockDataset(memory.MockSeed{
		AdminEmail:    cfg.Auth.BootstrapEmail,
		AdminPassword: password,
	})
	if err != nil {
		return stores{}, err
	}
	obs.Logger().Warn("no database configured; serving the in-memory mock dataset")
	return stores{
		users:   data.Users,
		perms:   data.Permissions,
		audit:   data.Audit,
		clients: data.Clients,
		close:   func() error { return nil },
	}, nil
}

// openResetBackend prefers Redis, then the JSON file.
func openResetBackend(ctx context.Context, cfg *config.Config) (resetcode.Backend, func() error, error) {
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis configured but unreachable: %w", err)
		}
		backend, err := resetcode.NewRedisBackend(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		obs.Logger().Info("reset codes stored in redis")
		return backend, client.Close, nil
	}
	if cfg.Reset.FilePath != "" {
		backend, err := resetcode.NewFileBackend(cfg.Reset.FilePath)
		if err != nil {
			return nil, nil, err
		}
		obs.Logger().Info("reset codes stored on disk", zap.String("path", cfg.Reset.FilePath))
		return backend, func() error { return nil }, nil
	}
	obs.Logger().Warn("reset codes kept in memory only")
	return resetcode.NewMemoryBackend(), func() error { return nil }, nil
}

func openUploads(ctx context.Context, cfg *config.Config) (*uploads.Service, error) {
	if !cfg.Uploads.Configured() {
		obs.Logger().Warn("no upload bucket configured; uploads kept in memory")
		return uploads.NewService(uploads.NewMemoryStorage())
	}
	client, err := uploads.NewS3Client(ctx, uploads.S3Settings{
		Region:       cfg.Uploads.Region,
		Endpoint:     cfg.Uploads.Endpoint,
		UsePathStyle: cfg.Uploads.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	storage, err := uploads.NewS3Storage(client, cfg.Uploads.Bucket)
	if err != nil {
		return nil, err
	}
	return uploads.NewService(storage)
}

func randomPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

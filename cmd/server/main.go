package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ncastellani/parlor/internal/api"
	"github.com/ncastellani/parlor/internal/config"
	"github.com/ncastellani/parlor/internal/content"
	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/files"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/server"
	"github.com/ncastellani/parlor/internal/stats"
	"go.uber.org/zap"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	uploadDir      string
	migrationsDir  string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&uploadDir, "upload-dir", "uploads", "directory for uploaded files")
	flag.StringVar(&migrationsDir, "migrations-dir", "migrations", "directory with schema migrations")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	cfg, err := config.NewConfig(addr, dsn, signingKey, uploadDir, migrationsDir, allowedOrigins)
	if err != nil {
		logger.Fatalw("config", "err", err)
	}

	dbConn, err := database.NewPgParlorRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalw("db open", "err", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Errorw("db close", "err", err)
		}
	}()

	if err := dbConn.Migrate(cfg.MigrationsDir); err != nil {
		logger.Fatalw("db migrate", "err", err)
	}

	uploads, err := files.NewStore(cfg.UploadDir)
	if err != nil {
		logger.Fatalw("upload store", "err", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	filter := content.NewFilter(nil)
	mod := moderation.NewEngine(dbConn, logger)

	chatServer, err := server.NewChatServer(logger, dbConn, mod, filter, statsUpdater)
	if err != nil {
		logger.Fatalw("new chat server", "err", err)
	}

	srv := api.NewParlorApp(mux, logger, chatServer, dbConn, mod, uploads, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infof("received signal: %s", sig)
	case err := <-errCh:
		logger.Errorw("server", "err", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalw("HTTP server shutdown", "err", err)
	}

	logger.Info("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalw("chat server shutdown", "err", err)
	}

	logger.Info("shutdown complete")
}

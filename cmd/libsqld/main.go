// Command libsqld serves a SQLite file as a libSQL primary for remote and
// embedded-replica clients.
//
//	libsqld -db data.db -addr :8080 -secret-key secret.key
//	libsqld token -secret-key secret.key -access ro -ttl 720h
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ineersa/libsqlshim/auth"
	"github.com/ineersa/libsqlshim/libsql"
	"github.com/ineersa/libsqlshim/sqlproxy/host"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		issueToken(os.Args[2:])
		return
	}
	serve(os.Args[1:])
}

func issueToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secretKey := fs.String("secret-key", "libsqld.key", "Path to the HMAC key used to sign tokens")
	access := fs.String("access", string(auth.AccessReadWrite), "Token access: rw or ro")
	ttl := fs.Duration("ttl", 0, "Token lifetime (0 = no expiry)")
	fs.Parse(args)

	key, err := auth.LoadSecretKey(*secretKey)
	if err != nil {
		log.Fatalf("Failed to load secret key: %v", err)
	}
	token, err := auth.IssueToken(key, auth.Access(*access), *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func serve(args []string) {
	fs := flag.NewFlagSet("libsqld", flag.ExitOnError)
	dbPath := fs.String("db", "", "Path to the SQLite database file")
	addr := fs.String("addr", ":8080", "Listen address for the HTTP server")
	driver := fs.String("driver", libsql.DriverSQLite3, "SQLite driver: sqlite3 or sqlite")
	secretKey := fs.String("secret-key", "libsqld.key", "Path to the HMAC key used to verify tokens")
	noAuth := fs.Bool("no-auth", false, "Accept requests without a token")
	debug := fs.Bool("debug", false, "Log every request")
	fs.Parse(args)

	if *dbPath == "" {
		log.Fatal("Database path must be provided via -db flag")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var verifier *auth.Verifier
	if !*noAuth {
		key, err := auth.LoadSecretKey(*secretKey)
		if err != nil {
			log.Fatalf("Failed to load secret key: %v", err)
		}
		verifier = auth.NewVerifier(key)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := libsql.OpenLocal(ctx, libsql.Config{
		Mode:   libsql.ModeLocal,
		Path:   *dbPath,
		Driver: *driver,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer engine.Close()

	sqlHost := host.NewSQLHost(engine, logger)
	defer sqlHost.Reset()

	srv := &http.Server{
		Addr:    *addr,
		Handler: host.NewServer(sqlHost, verifier, logger),
	}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting primary", "addr", *addr, "db", *dbPath, "auth", verifier != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"bonscompte.example/bonscompte/httpapi"
	"bonscompte.example/bonscompte/store"
)

func main() {
	_ = godotenv.Load()

	logHandler := slog.NewTextHandler(os.Stderr, nil)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	slog.Info("Starting bonscompte backend...")

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		slog.Error("DATABASE_PATH environment variable not set")
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", "path", dbPath, "err", err)
		os.Exit(1)
	}
	slog.Info("Database connection successful", "path", dbPath)

	st := store.New(db)
	handler := httpapi.NewMux(st, db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
		slog.Warn("PORT environment variable not set, using default", "port", port)
	}

	serverAddr := fmt.Sprintf(":%s", port)
	slog.Info("Starting HTTP server", "address", serverAddr)

	if err := http.ListenAndServe(serverAddr, handler); err != nil {
		slog.Error("HTTP server failed", "err", err)
		os.Exit(1)
	}
}

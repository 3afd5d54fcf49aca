package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bonscompte.example/bonscompte/auth"
	"bonscompte.example/bonscompte/httpapi"
	"bonscompte.example/bonscompte/store"
	_ "modernc.org/sqlite"
)

// runMigrations executes the schema SQL against the database.
func runMigrations(db *sql.DB, schemaPath string) error {
	slog.Info("Running migrations...", "schema", schemaPath)
	query, err := os.ReadFile(schemaPath)
	if err != nil {
		altPath := filepath.Join("..", schemaPath)
		slog.Warn("Schema not found at primary path, trying alternative", "primary", schemaPath, "alternative", altPath)
		query, err = os.ReadFile(altPath)
		if err != nil {
			return err
		}
		schemaPath = altPath
		slog.Info("Found schema at alternative path", "schema", schemaPath)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(query)); err != nil {
		return err
	}
	return tx.Commit()
}

// TestEnv holds the components needed for running httpapi tests against an
// in-memory database seeded with one user and one project they belong to.
type TestEnv struct {
	DB         *sql.DB
	Store      *store.Store
	Handler    http.Handler
	AuthToken  string
	UserID     int64
	ProjectID  string
	TearDownDB func()
}

// SetupTestEnvironment initializes an in-memory SQLite database, runs
// cmd/migrate/schema.sql against it, seeds one user and one project they're
// a member of, and wires httpapi.NewMux over it.
func SetupTestEnvironment(t *testing.T) *TestEnv {
	t.Helper()

	logLevel := slog.LevelInfo
	if os.Getenv("BONSCOMPTE_LOG_LEVEL") == "DEBUG" {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(logHandler))
	slog.Info("Setting up test environment...")

	if os.Getenv("JWT_SECRET_KEY") == "" {
		os.Setenv("JWT_SECRET_KEY", "test-secret-key-do-not-use-in-production")
	}

	dbPath := "file::memory:?cache=shared"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(2)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping in-memory database: %v", err)
	}

	schemaPath := "cmd/migrate/schema.sql"
	if err := runMigrations(db, schemaPath); err != nil {
		db.Close()
		t.Fatalf("failed to run database migrations: %v", err)
	}

	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name) VALUES (?, ?, ?)",
		"test_user", "$2a$10$placeholderplaceholderplaceholderplaceholder", "Test User")
	if err != nil {
		db.Close()
		t.Fatalf("failed to seed test user: %v", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		db.Close()
		t.Fatalf("failed to read seeded user id: %v", err)
	}

	st := store.New(db)
	projectID, berr := st.CreateProject("Test Project", "test-harness", "seed-project", time.Now())
	if berr != nil {
		db.Close()
		t.Fatalf("failed to seed test project: %v", berr)
	}
	if _, err := db.Exec("INSERT INTO project_members (project_id, user_id) VALUES (?, ?)", projectID, userID); err != nil {
		db.Close()
		t.Fatalf("failed to seed project membership: %v", err)
	}

	token, err := auth.GenerateTestJWT(userID)
	if err != nil {
		db.Close()
		t.Fatalf("failed to generate JWT for test user: %v", err)
	}

	handler := httpapi.NewMux(st, db)

	slog.Info("Test environment setup complete.")
	return &TestEnv{
		DB:         db,
		Store:      st,
		Handler:    handler,
		AuthToken:  token,
		UserID:     userID,
		ProjectID:  projectID,
		TearDownDB: func() { db.Close() },
	}
}

// NewAuthenticatedRequest builds an *http.Request with a JSON-encoded body
// and a bearer token, or no Authorization header when token is "".
func NewAuthenticatedRequest(t *testing.T, method, path, token string, body interface{}) *http.Request {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// ExecuteRequest runs req through handler and returns the recorded response.
func ExecuteRequest(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatusCode fails the test if rr's status doesn't match expectedStatus.
func AssertStatusCode(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if status := rr.Code; status != expectedStatus {
		t.Errorf("handler returned wrong status code: got %v want %v", status, expectedStatus)
		t.Logf("Response body: %s", rr.Body.String())
	}
}

// AssertBodyContains fails the test if rr's body is missing any of the
// expected substrings.
func AssertBodyContains(t *testing.T, rr *httptest.ResponseRecorder, expectedSubstrings ...string) {
	t.Helper()
	body := rr.Body.String()
	for _, sub := range expectedSubstrings {
		if !bytes.Contains(rr.Body.Bytes(), []byte(sub)) {
			t.Errorf("handler response body does not contain expected string '%s'", sub)
			t.Logf("Response body: %s", body)
		}
	}
}

// DecodeJSONResponse decodes rr's JSON body into target.
func DecodeJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode JSON response body: %v\nBody: %s", err, rr.Body.String())
	}
}

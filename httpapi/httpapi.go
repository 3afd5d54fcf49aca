// Package httpapi exposes the store package's operations over HTTP,
// generalizing the teacher's cmd/sapp/main.go wiring (one ServeMux,
// loggingMiddleware wrapping every route, rs/cors around the whole mux,
// AuthMiddleware guarding everything but login/refresh/registration) to the
// project-scoped route set spec §6 implies.
package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"bonscompte.example/bonscompte/auth"
	"bonscompte.example/bonscompte/store"
)

// NewMux wires every project/payment/participant/history route behind
// auth.AuthMiddleware and project-membership checks, plus the public
// login/refresh/register routes and the token-checked verify route, and
// wraps the whole thing in CORS
// and request logging — the same layering cmd/sapp/main.go used.
func NewMux(st *store.Store, db *sql.DB) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auth/login", auth.HandleLogin(db))
	mux.HandleFunc("POST /v1/auth/refresh", auth.HandleRefresh(db))
	mux.Handle("GET /v1/auth/verify", auth.AuthMiddleware(auth.HandleVerify(db)))
	mux.HandleFunc("POST /v1/auth/register", auth.HandleRegisterUser(db))

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/projects", handleCreateProject(st))
	protected.HandleFunc("POST /v1/projects/{project_id}/participants", requireMember(db, handleCreateParticipant(st)))
	protected.HandleFunc("GET /v1/projects/{project_id}/participants", requireMember(db, handleListParticipants(st)))

	protected.HandleFunc("POST /v1/projects/{project_id}/payments", requireMember(db, handleCreatePayment(st)))
	protected.HandleFunc("PUT /v1/projects/{project_id}/payments/{payment_id}", requireMember(db, handleUpdatePayment(st)))
	protected.HandleFunc("DELETE /v1/projects/{project_id}/payments/{payment_id}", requireMember(db, handleDeletePayment(st)))
	protected.HandleFunc("GET /v1/projects/{project_id}/payments", requireMember(db, handleListPayments(st)))
	protected.HandleFunc("GET /v1/projects/{project_id}/payments/{payment_id}", requireMember(db, handleGetPayment(st)))

	protected.HandleFunc("GET /v1/projects/{project_id}/debts", requireMember(db, handleProjectDebts(st)))
	protected.HandleFunc("GET /v1/projects/{project_id}/cashflow", requireMember(db, handleCashflowProjection(st)))

	protected.HandleFunc("GET /v1/projects/{project_id}/export", requireMember(db, handleExportProject(st)))

	protected.HandleFunc("GET /v1/projects/{project_id}/history", requireMember(db, handleHistory(st)))
	protected.HandleFunc("GET /v1/projects/{project_id}/history/verify", requireMember(db, handleVerifyChain(st)))
	protected.HandleFunc("POST /v1/projects/{project_id}/history/{history_id}/undo", requireMember(db, handleUndo(st)))

	mux.Handle("/v1/projects", auth.AuthMiddleware(protected))
	mux.Handle("/v1/projects/", auth.AuthMiddleware(protected))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})
	return loggingMiddleware(corsHandler.Handler(mux))
}

// loggingMiddleware logs every request's method, path, status, and
// duration via log/slog, matching cmd/sapp/main.go's own
// loggingMiddleware.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("request",
			"method", r.Method, "path", r.URL.Path, "status", sw.status, "duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

package httpapi

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"bonscompte.example/bonscompte/auth"
	"bonscompte.example/bonscompte/bonserr"
)

// requireMember checks that the authenticated user (placed in context by
// auth.AuthMiddleware) belongs to the project named in the route's
// {project_id} path value, before calling next.
func requireMember(db *sql.DB, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, bonserr.New(bonserr.InvalidInput, "missing authentication"))
			return
		}
		projectID := r.PathValue("project_id")
		member, err := auth.IsProjectMember(db, projectID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, bonserr.Wrap(bonserr.DatabaseError, err))
			return
		}
		if !member {
			writeError(w, http.StatusForbidden, bonserr.New(bonserr.ProjectNotFound, "not a member of this project"))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError maps a *bonserr.Error onto an HTTP status and a uniform
// {"error": {"code": ..., "message": ...}} body. Storage/internal codes
// get 500; everything else from spec §7's taxonomy is a client error.
func writeError(w http.ResponseWriter, fallbackStatus int, err *bonserr.Error) {
	status := fallbackStatus
	switch err.Code {
	case bonserr.ProjectNotFound, bonserr.PaymentNotFound, bonserr.ParticipantNotFound:
		status = http.StatusNotFound
	case bonserr.DatabaseError, bonserr.InternalError:
		status = http.StatusInternalServerError
	case bonserr.InvalidInput, bonserr.AmountMustBePositive, bonserr.ContributionRequired,
		bonserr.TotalWeightMustBePositive, bonserr.InvalidPayer, bonserr.InvalidReceiver,
		bonserr.InvalidDateFormat, bonserr.InvalidImageFormat, bonserr.ImageTooLarge, bonserr.ImageEmpty,
		bonserr.InvalidBase64Image, bonserr.InvalidSplit, bonserr.PoolWarningOnlyForPools,
		bonserr.LinkedUserCannotBePool, bonserr.InvalidWarningHorizon, bonserr.PayerExpectationRequiresPool:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": err.Code, "message": err.Message},
	})
}

func decodeJSON(r *http.Request, v any) *bonserr.Error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bonserr.Wrap(bonserr.InvalidInput, err)
	}
	return nil
}

// actorFrom reads the requesting user id for change-log attribution.
func actorFrom(r *http.Request) string {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		return "system"
	}
	return strconv.FormatInt(userID, 10)
}

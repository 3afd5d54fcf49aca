package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/store"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

func handleCreateProject(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProjectRequest
		if berr := decodeJSON(r, &req); berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		id, berr := st.CreateProject(req.Name, actorFrom(r), uuid.NewString(), time.Now())
		if berr != nil {
			writeError(w, http.StatusInternalServerError, berr)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

type participantRequest struct {
	Name                  string  `json:"name"`
	DefaultWeight         float64 `json:"default_weight"`
	Kind                  string  `json:"kind"`
	LinkedUserID          string  `json:"linked_user_id"`
	WarningHorizonAccount string  `json:"warning_horizon_account"`
	WarningHorizonUsers   string  `json:"warning_horizon_users"`
}

type participantResponse struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	DefaultWeight         float64 `json:"default_weight"`
	Kind                  string  `json:"kind"`
	LinkedUserID          string  `json:"linked_user_id,omitempty"`
	WarningHorizonAccount string  `json:"warning_horizon_account,omitempty"`
	WarningHorizonUsers   string  `json:"warning_horizon_users,omitempty"`
}

func toParticipantResponse(p domain.Participant) participantResponse {
	return participantResponse{
		ID: p.ID, Name: p.Name, DefaultWeight: p.DefaultWeight, Kind: string(p.Kind),
		LinkedUserID: p.LinkedUserID, WarningHorizonAccount: string(p.WarningHorizonAccount),
		WarningHorizonUsers: string(p.WarningHorizonUsers),
	}
}

func handleCreateParticipant(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		var req participantRequest
		if berr := decodeJSON(r, &req); berr != nil {
			writeError(w, http.StatusBadRequest, berr)
			return
		}
		p := domain.Participant{
			Name: req.Name, DefaultWeight: req.DefaultWeight, Kind: domain.AccountKind(req.Kind),
			LinkedUserID: req.LinkedUserID,
			WarningHorizonAccount: domain.WarningHorizon(req.WarningHorizonAccount),
			WarningHorizonUsers:   domain.WarningHorizon(req.WarningHorizonUsers),
		}
		created, berr := st.CreateParticipant(projectID, p, actorFrom(r), uuid.NewString(), time.Now())
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusCreated, toParticipantResponse(created))
	}
}

func handleListParticipants(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		participants, berr := st.ListParticipants(projectID)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		out := make([]participantResponse, len(participants))
		for i, p := range participants {
			out[i] = toParticipantResponse(p)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// errStatusFor is writeError's fallback-status companion for handlers that
// don't know in advance whether a *bonserr.Error should 400/404/500 —
// writeError's switch already picks the precise status for every code it
// lists (DATABASE_ERROR and INTERNAL_ERROR among them), so the fallback,
// always 500, only applies to a code the switch does not list.
func errStatusFor(err *bonserr.Error) int {
	return http.StatusInternalServerError
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/changelog"
	"bonscompte.example/bonscompte/store"
)

func recordWire(rec changelog.Record) map[string]any {
	return map[string]any{
		"id":             rec.ID,
		"timestamp":      rec.Timestamp,
		"correlation_id": rec.CorrelationID,
		"actor":          rec.Actor,
		"entity_type":    rec.EntityType,
		"entity_id":      rec.EntityID,
		"action":         rec.Action,
		"payload_before": rec.PayloadBefore,
		"payload_after":  rec.PayloadAfter,
		"undoes_id":      rec.UndoesID,
		"previous_hash":  rec.PreviousHash,
		"hash":           rec.Hash,
	}
}

func handleHistory(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		records, berr := st.History(projectID)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		out := make([]map[string]any, len(records))
		for i, rec := range records {
			out[i] = recordWire(rec)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleVerifyChain(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		result, berr := st.VerifyChain(projectID)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":           result.IsValid,
			"total_entries":   result.TotalEntries,
			"first_broken_id": result.FirstBrokenID,
		})
	}
}

type undoRequest struct {
	Reason string `json:"reason,omitempty"`
}

func handleUndo(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		historyIDRaw := r.PathValue("history_id")
		historyID, err := strconv.ParseInt(historyIDRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, bonserr.New(bonserr.InvalidInput, "history_id must be an integer"))
			return
		}
		var req undoRequest
		if r.Body != nil {
			_ = decodeJSON(r, &req)
		}
		rec, berr := st.Undo(projectID, historyID, actorFrom(r), uuid.NewString(), time.Now())
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusCreated, recordWire(rec))
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bonscompte.example/bonscompte/export"
	"bonscompte.example/bonscompte/store"
)

// handleExportProject serves a project's full state as a downloadable
// JSON document, generalizing the teacher's GET /v1/export/all (one
// fixed user+partner payload) to one payload per project.
func handleExportProject(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		data, berr := export.Export(st, projectID, time.Now())
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(data); err != nil {
			slog.Error("encode export", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		filename := fmt.Sprintf("bonscompte_export_%s_%s.json", projectID, time.Now().UTC().Format("20060102_150405"))
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/trainbox/orchestrator/internal/store"
)

// apiAdminStopContainer force-stops any sandbox regardless of owner.
func (s *Server) apiAdminStopContainer(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	containerID := r.PathValue("containerId")

	if err := s.deps.Launcher.Stop(r.Context(), containerID, id.Subject, true); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "container not found")
			return
		}
		s.deps.Log.Error("admin stop failed", "container", containerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stop container")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// apiAdminListContainers returns every running sandbox.
func (s *Server) apiAdminListContainers(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Registry.ListRunning()
	if err != nil {
		s.deps.Log.Error("failed to list containers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list containers")
		return
	}
	if records == nil {
		records = []ContainerSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": records})
}

// apiAdminDeleteExercise removes a catalog entry and its image.
func (s *Server) apiAdminDeleteExercise(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	exerciseID := r.PathValue("exerciseId")

	if err := s.deps.Builder.Delete(r.Context(), exerciseID, id.Subject); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "exercise not found")
			return
		}
		s.deps.Log.Error("exercise delete failed", "exercise", exerciseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete exercise")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// apiAdminEvents returns journal entries newest-first, paged.
func (s *Server) apiAdminEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	events, err := s.deps.Journal.ListEvents(limit, page)
	if err != nil {
		s.deps.Log.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []EventEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// apiAdminEventStream streams live orchestration events over SSE. The
// connection stays open until the client disconnects or the server shuts
// down.
func (s *Server) apiAdminEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel := s.deps.EventBus.Subscribe()
	defer cancel()

	// Initial event so the client knows the stream is live.
	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.deps.Log.Warn("failed to marshal SSE event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/trainbox/orchestrator/internal/builder"
	"github.com/trainbox/orchestrator/internal/lifecycle"
	"github.com/trainbox/orchestrator/internal/store"
)

// apiUploadExercise accepts a multipart bundle upload, builds the image,
// and registers the exercise.
func (s *Server) apiUploadExercise(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	if r.ContentLength > s.deps.UploadMaxSize {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.deps.UploadMaxSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.UploadMaxSize)
	file, header, err := r.FormFile("exercise")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'exercise' is required")
		return
	}
	defer file.Close()

	// The archive lands in a temp file whose name keeps the original
	// extension; extraction dispatches on it.
	archivePath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.deps.Log.Error("failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	ex, err := s.deps.Builder.Build(r.Context(), archivePath, id.Subject)
	if err != nil {
		switch {
		case errors.Is(err, builder.ErrInvalidBundle), errors.Is(err, builder.ErrBuildFailed):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.deps.Log.Error("exercise build failed", "error", err)
			writeError(w, http.StatusInternalServerError, "build failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"image": map[string]string{
			"name":    ex.Title,
			"version": ex.Version,
			"tag":     ex.ImageTag,
		},
	})
}

func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.deps.UploadDir, 0755); err != nil {
		return "", err
	}
	out, err := os.CreateTemp(s.deps.UploadDir, "upload-*"+uploadExt(filename))
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// uploadExt keeps the archive extension so extraction can dispatch on it;
// ".tar.gz" must survive as a whole.
func uploadExt(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(filename)
}

// apiListExercises returns the catalog annotated with the caller's
// progress.
func (s *Server) apiListExercises(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	exercises, err := s.deps.Catalog.ListExercises()
	if err != nil {
		s.deps.Log.Error("failed to list exercises", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exercises")
		return
	}
	progress, err := s.deps.Catalog.ProgressBySubject(id.Subject)
	if err != nil {
		s.deps.Log.Error("failed to read progress", "subject", id.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read progress")
		return
	}

	for i := range exercises {
		if p, ok := progress[exercises[i].ID]; ok {
			exercises[i].Status = p.Status
			exercises[i].Attempts = p.Attempts
		}
	}
	if exercises == nil {
		exercises = []ExerciseSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": exercises})
}

// apiLaunchExercise starts a sandbox for the caller.
func (s *Server) apiLaunchExercise(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	exerciseID := r.PathValue("exerciseId")

	rec, err := s.deps.Launcher.Launch(r.Context(), id.Subject, exerciseID)
	if err != nil {
		var already *lifecycle.AlreadyRunningError
		switch {
		case errors.As(err, &already):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":     "Exercise already running",
				"subdomain": already.Subdomain + "." + s.deps.BaseDomain,
			})
		case errors.Is(err, lifecycle.ErrQuotaExceeded):
			writeError(w, http.StatusBadRequest, "concurrent container limit reached")
		case errors.Is(err, lifecycle.ErrUnknownExercise):
			writeError(w, http.StatusNotFound, "exercise not found")
		default:
			s.deps.Log.Error("launch failed", "subject", id.Subject, "exercise", exerciseID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to launch exercise")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"containerId": rec.ContainerID,
		"subdomain":   rec.Subdomain + "." + s.deps.BaseDomain,
	})
}

// apiListContainers returns the caller's running sandboxes.
func (s *Server) apiListContainers(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	records, err := s.deps.Registry.ListRunningBySubject(id.Subject)
	if err != nil {
		s.deps.Log.Error("failed to list containers", "subject", id.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list containers")
		return
	}
	if records == nil {
		records = []ContainerSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": records})
}

// apiStopContainer stops a sandbox the caller owns.
func (s *Server) apiStopContainer(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	containerID := r.PathValue("containerId")

	if err := s.deps.Launcher.Stop(r.Context(), containerID, id.Subject, false); err != nil {
		switch {
		case store.IsNotFound(err):
			writeError(w, http.StatusNotFound, "container not found")
		case errors.Is(err, lifecycle.ErrForbidden):
			writeError(w, http.StatusForbidden, "container belongs to another user")
		default:
			s.deps.Log.Error("stop failed", "container", containerID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to stop container")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// apiCompleteExercise handles the in-sandbox completion callback.
func (s *Server) apiCompleteExercise(w http.ResponseWriter, r *http.Request) {
	subdomain := r.PathValue("subdomain")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	payload := make(map[string]string, len(raw))
	for k, v := range raw {
		payload[k] = fmt.Sprint(v)
	}

	if _, err := s.deps.Launcher.Complete(r.Context(), subdomain, payload); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "container not found")
			return
		}
		s.deps.Log.Error("completion failed", "subdomain", subdomain, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record completion")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// apiHealthz reports runtime and store liveness.
func (s *Server) apiHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Health.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

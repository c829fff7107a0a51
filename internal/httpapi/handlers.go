package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"wablast/internal/services/broadcast"
	logx "wablast/pkg/logx"
)

// maxStartForm bounds the multipart form kept in memory on /api/start.
const maxStartForm = 4 << 20

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if s.sess.Connected() {
		s.writeJSON(w, http.StatusOK, map[string]any{"message": "already connected"})
		return
	}
	code := s.sess.Challenge()
	if code == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"message": "no pairing challenge pending"})
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "qr render failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"qr": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxStartForm); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "expected multipart form"})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	delaySec, err := strconv.Atoi(strings.TrimSpace(r.FormValue("delay")))
	if err != nil || delaySec <= 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "delay must be a positive integer (seconds)"})
		return
	}

	recipients := broadcast.ParseRecipients(r.FormValue("receiver"))

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message file is required"})
		return
	}
	defer file.Close()

	lines, err := broadcast.DeriveLines(name, file)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed reading message file"})
		return
	}

	count, err := s.ctrl.Start(broadcast.Job{
		Recipients: recipients,
		Lines:      lines,
		Delay:      time.Duration(delaySec) * time.Second,
	})
	if err != nil {
		s.writeStartError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "broadcast started", "count": count})
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broadcast.ErrEmptyJob):
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, broadcast.ErrAlreadyRunning), errors.Is(err, broadcast.ErrNotConnected):
		s.writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "broadcast stopped"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.ctrl.Logs()
	s.writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ClearLogs()
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "logs cleared"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", logx.Err(err))
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appGame "github.com/linepoll/linepoll/internal/application/game"
	"github.com/linepoll/linepoll/internal/domain/game"
)

// Server exposes a read-mostly operations API next to the chat transport:
// health, per-chat status, transcripts and a manual poll trigger.
type Server struct {
	gameSvc *appGame.Service
}

func NewServer(gameSvc *appGame.Service) *Server {
	return &Server{gameSvc: gameSvc}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/chats", func(r chi.Router) {
			r.Get("/", s.listChats)
			r.Route("/{chatId}", func(r chi.Router) {
				r.Get("/status", s.chatStatus)
				r.Get("/code", s.chatCode)
				r.Post("/sendnow", s.sendNow)
				r.Post("/stop", s.stop)
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func chatIDParam(r *http.Request) (string, error) {
	val := chi.URLParam(r, "chatId")
	if _, err := strconv.ParseInt(val, 10, 64); err != nil {
		return "", err
	}
	return val, nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.gameSvc.ListChats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) chatStatus(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid chatId")
		return
	}
	st, err := s.gameSvc.Status(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) chatCode(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid chatId")
		return
	}
	history, err := s.gameSvc.Transcript(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id": chatID,
		"lines":   len(history),
		"code":    appGame.FormatTranscript(history),
	})
}

func (s *Server) sendNow(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid chatId")
		return
	}
	err = s.gameSvc.ForceSend(r.Context(), chatID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{"chat_id": chatID, "status": "POLL_OPENED"})
	case errors.Is(err, game.ErrPollActive):
		respondError(w, http.StatusConflict, "POLL_ACTIVE", "a poll is already open for this chat")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid chatId")
		return
	}
	err = s.gameSvc.Stop(r.Context(), chatID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{"chat_id": chatID, "status": "POLL_CLOSED"})
	case errors.Is(err, game.ErrStalePoll):
		respondError(w, http.StatusConflict, "NO_ACTIVE_POLL", "no poll is open for this chat")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

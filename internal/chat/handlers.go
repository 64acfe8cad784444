package chat

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/common/errors"
	"github.com/societynet/societychat/internal/identity"
)

// Handler serves the HTTP read path for chat history.
type Handler struct {
	service *Service
	idm     *identity.Manager
	logger  *zap.Logger
}

func NewHandler(service *Service, idm *identity.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, idm: idm, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/chat/{room}/history", h.GetHistory).Methods(http.MethodGet)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.FromBearer(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, errors.Unauthorized("missing bearer token"))
		return
	}

	ident, err := h.idm.Verify(token)
	if err != nil {
		writeError(w, errors.Unauthorized("invalid token"))
		return
	}

	room := mux.Vars(r)["room"]
	history, err := h.service.GetHistory(r.Context(), room, ident.UserID)
	if err != nil {
		h.logger.Error("history read failed", zap.String("room", room), zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"code":  string(errors.CodeOf(err)),
	})
}

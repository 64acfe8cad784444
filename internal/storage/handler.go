package storage

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/identity"
)

type Handler struct {
	storage *Storage
	idm     *identity.Manager
	logger  *zap.Logger
}

func NewHandler(storage *Storage, idm *identity.Manager, logger *zap.Logger) *Handler {
	return &Handler{storage: storage, idm: idm, logger: logger}
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/chat/upload", h.Upload).Methods(http.MethodPost)
	router.PathPrefix("/files/").HandlerFunc(h.Download).Methods(http.MethodGet)
}

// Upload accepts one multipart file and returns the attachment descriptor.
// Uploads happen before the send event reaches the coordinator; a failure
// here means no message is created.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	token, ok := identity.FromBearer(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := h.idm.Verify(token); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := h.storage.Store(r.Context(), file, header.Filename)
	if err != nil {
		h.logger.Warn("upload failed", zap.String("filename", header.Filename), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/files/")

	reader, err := h.storage.Open(r.Context(), path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer func() {
		_ = reader.Close()
	}()

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Debug("download interrupted", zap.String("path", path), zap.Error(err))
	}
}

package handler

import (
	"net/http"
	"time"

	"distributed-rate-limiter/internal/storage"
	"distributed-rate-limiter/pkg/response"
)

type HealthHandler struct {
	store storage.Storage
}

func NewHealthHandler(store storage.Storage) *HealthHandler {
	return &HealthHandler{store: store}
}

// Verifica se o serviço e o armazenamento compartilhado estão funcionando
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	storageStatus := "ok"
	status := http.StatusOK
	if !h.store.Available(r.Context()) {
		storageStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	response.WriteSuccess(w, status, "Service health", map[string]interface{}{
		"status":    storageStatus,
		"timestamp": time.Now(),
		"service":   "rate-limiter",
	})
}

// Retorna um recurso de exemplo para testar rate limiting
func (h *HealthHandler) Resource(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, http.StatusOK, "Resource accessed successfully", map[string]interface{}{
		"resource":  "sample-resource",
		"timestamp": time.Now(),
		"message":   "This is a sample resource for testing rate limiting",
	})
}

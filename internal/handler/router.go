package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// System endpoints
	mux.HandleFunc("/health", h.HandleHealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// API endpoints
	mux.HandleFunc("/api/open", h.HandleOpen)
	mux.HandleFunc("/api/close", h.HandleClose)
	mux.HandleFunc("/api/read", h.HandleRead)
	mux.HandleFunc("/api/write", h.HandleWrite)
	mux.HandleFunc("/api/lseek", h.HandleSeek)
	mux.HandleFunc("/api/mkdir", h.HandleMkdir)
	mux.HandleFunc("/api/rmdir", h.HandleRmdir)
	mux.HandleFunc("/api/unlink", h.HandleUnlink)
	mux.HandleFunc("/api/rename", h.HandleRename)
	mux.HandleFunc("/api/symlink", h.HandleSymlink)
	mux.HandleFunc("/api/readlink", h.HandleReadlink)
	mux.HandleFunc("/api/stat", h.HandleStat)
	mux.HandleFunc("/api/readdir", h.HandleReaddir)
	mux.HandleFunc("/api/truncate", h.HandleTruncate)
	mux.HandleFunc("/api/chmod", h.HandleChmod)
	mux.HandleFunc("/api/sync", h.HandleSync)
}

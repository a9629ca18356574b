package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Blobs.
	mux.HandleFunc("POST /v1/blobs", s.handleUploadBlob)
	mux.HandleFunc("GET /v1/blobs", s.handleListBlobs)
	mux.HandleFunc("GET /v1/blobs/stats", s.handleBlobStats)
	mux.HandleFunc("POST /v1/blobs/recount", s.requireAdmin(s.handleRecountBlobs))
	mux.HandleFunc("GET /v1/blobs/{id}", s.handleGetBlob)
	mux.HandleFunc("GET /v1/blobs/{id}/content", s.handleGetBlobContent)
	mux.HandleFunc("DELETE /v1/blobs/{id}", s.requireAdmin(s.handleDeleteBlob))

	// Garbage collection.
	mux.HandleFunc("GET /v1/gc/preview", s.handleGCPreview)
	mux.HandleFunc("POST /v1/gc/run", s.requireAdmin(s.handleGCRun))

	// Offline cache.
	mux.HandleFunc("GET /v1/cache", s.handleListCache)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /v1/cache/{id}", s.handleGetCached)
	mux.HandleFunc("DELETE /v1/cache", s.requireAdmin(s.handleClearCache))
	mux.HandleFunc("DELETE /v1/cache/{id}", s.requireAdmin(s.handleRemoveCached))

	// Sync queue.
	mux.HandleFunc("GET /v1/queue", s.handleListQueue)
	mux.HandleFunc("GET /v1/queue/count", s.handleQueueCount)
	mux.HandleFunc("POST /v1/queue", s.handleEnqueue)
	mux.HandleFunc("DELETE /v1/queue", s.requireAdmin(s.handleClearQueue))
	mux.HandleFunc("DELETE /v1/queue/{id}", s.requireAdmin(s.handleRemoveQueued))

	return s.withRequestLogging(mux)
}

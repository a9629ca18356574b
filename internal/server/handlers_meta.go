package server

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docvault/internal/api"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.vault.IsAvailable(r.Context()) {
		err := makeAPIError(http.StatusServiceUnavailable, string(vaulterr.KindUnavailable), ErrCodeUnavailable, fmt.Errorf("vault unavailable"))
		s.writeErrorReq(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeOK(s, w, http.StatusOK, api.HealthResponse{Status: "ok", Available: true})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	plan, err := store.MigrationPlan(comps.DB.DB())
	if err != nil {
		s.writeVaultError(w, r, "migration plan", err)
		return
	}
	usage, err := comps.DB.BlobUsage(ctx)
	if err != nil {
		s.writeVaultError(w, r, "blob usage", err)
		return
	}
	docs, err := comps.Documents.ListDocuments(ctx)
	if err != nil {
		s.writeVaultError(w, r, "list documents", err)
		return
	}
	queued, err := comps.Queue.Count(ctx)
	if err != nil {
		s.writeVaultError(w, r, "count queue", err)
		return
	}

	cfg := s.vault.Config()
	writeOK(s, w, http.StatusOK, api.InfoResponse{
		Version:          s.version,
		SchemaVersion:    plan.CurrentVersion,
		DataDir:          cfg.DataDir,
		BlobBackend:      cfg.Blobs.Backend,
		Blobs:            usage.Count,
		Documents:        len(docs),
		CachedDocuments:  comps.Offline.GetStats().Entries,
		QueuedOperations: queued,
	})
}

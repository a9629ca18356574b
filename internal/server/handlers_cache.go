package server

import (
	"fmt"
	"net/http"

	"docvault/internal/api"
	"docvault/internal/models"
)

func (s *Server) handleListCache(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	host := queryString(r, "host")
	entries := make([]models.CacheEntry, 0)
	for _, entry := range comps.Offline.Entries() {
		if host != "" && entry.HostID != host {
			continue
		}
		entries = append(entries, entry)
	}
	writeOK(s, w, http.StatusOK, entries)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	stats := comps.Offline.GetStats()
	writeOK(s, w, http.StatusOK, api.CacheStats{
		Entries:        stats.Entries,
		TotalSize:      stats.TotalSize,
		MaxSize:        stats.MaxSize,
		MaxEntries:     stats.MaxEntries,
		Evictions:      stats.Evictions,
		OldestCachedAt: stats.OldestCachedAt,
		NewestCachedAt: stats.NewestCachedAt,
	})
}

func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentIDOrBadRequest(w, r)
	if !ok {
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	doc, err := comps.Offline.Get(r.Context(), id)
	if err != nil {
		s.writeVaultError(w, r, "get cached document", err)
		return
	}
	if doc == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("document not cached"), ErrCodeDocumentNotFound))
		return
	}
	writeOK(s, w, http.StatusOK, doc)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	host := queryString(r, "host")
	if host != "" {
		removed, err := comps.Offline.ClearForHost(r.Context(), host)
		if err != nil {
			s.writeVaultError(w, r, "clear cache for host", err)
			return
		}
		writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: removed})
		return
	}

	removed := comps.Offline.GetStats().Entries
	if err := comps.Offline.ClearAll(r.Context()); err != nil {
		s.writeVaultError(w, r, "clear cache", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: removed})
}

func (s *Server) handleRemoveCached(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentIDOrBadRequest(w, r)
	if !ok {
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	removed := 0
	if comps.Offline.Has(id) {
		removed = 1
	}
	if err := comps.Offline.Remove(r.Context(), id); err != nil {
		s.writeVaultError(w, r, "remove cached document", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: removed})
}

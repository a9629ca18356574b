package server

import (
	"fmt"
	"net/http"

	"docvault/internal/api"
	"docvault/internal/gc"
	"docvault/internal/models"
)

func (s *Server) handleGCPreview(w http.ResponseWriter, r *http.Request) {
	opts, err := gcOptionsFromQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		comps, ok := s.components(w, r)
		if !ok {
			return
		}
		orphans, err := comps.GC.GetOrphanedBlobs(r.Context(), opts)
		if err != nil {
			s.writeVaultError(w, r, "gc preview", err)
			return
		}
		resp := api.GCPreviewResponse{Blobs: orphans, Count: len(orphans)}
		if resp.Blobs == nil {
			resp.Blobs = []models.Blob{}
		}
		for _, blob := range orphans {
			resp.TotalBytes += blob.SizeBytes
		}
		writeOK(s, w, http.StatusOK, resp)
	})
}

func (s *Server) handleGCRun(w http.ResponseWriter, r *http.Request) {
	var req api.GCRequest
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	if req.BatchSize < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("batch_size must be >= 0"), ErrCodeInvalidArgument))
		return
	}
	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		comps, ok := s.components(w, r)
		if !ok {
			return
		}
		res, err := comps.GC.CollectGarbage(r.Context(), gc.Options{
			IncludeIcons:      req.IncludeIcons,
			FullRescan:        req.FullRescan,
			RespectUsageCount: req.RespectUsageCount,
			BatchSize:         req.BatchSize,
		})
		if err != nil {
			s.writeVaultError(w, r, "gc run", err)
			return
		}
		writeOK(s, w, http.StatusOK, gcRunResponse(res))
	})
}

func gcOptionsFromQuery(r *http.Request) (gc.Options, error) {
	var opts gc.Options
	var err error
	if opts.IncludeIcons, err = queryBool(r, "include_icons"); err != nil {
		return opts, err
	}
	if opts.RespectUsageCount, err = queryBool(r, "respect_usage_count"); err != nil {
		return opts, err
	}
	if opts.FullRescan, err = queryBool(r, "full_rescan"); err != nil {
		return opts, err
	}
	return opts, nil
}

func gcRunResponse(res gc.Result) api.GCRunResponse {
	return api.GCRunResponse{
		BlobsDeleted:     res.BlobsDeleted,
		BytesFreed:       res.BytesFreed,
		Failed:           res.Failed,
		Candidates:       res.Candidates,
		DocumentsScanned: res.DocumentsScanned,
		CacheHits:        res.CacheHits,
		DurationMS:       res.Duration.Milliseconds(),
	}
}

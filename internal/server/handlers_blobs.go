package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"docvault/internal/api"
	"docvault/internal/models"
)

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		comps, ok := s.components(w, r)
		if !ok {
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, blobUploadMaxBody))
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("blob too large"), ErrCodeRequestTooLarge))
				return
			}
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidArgument))
			return
		}

		name := queryString(r, "name")
		mimeType := queryString(r, "mime_type")
		var id string
		if mimeType == "" {
			id, err = comps.Blobs.Save(r.Context(), data, name)
		} else {
			id, err = comps.Blobs.SaveWithType(r.Context(), data, name, mimeType)
		}
		if err != nil {
			s.writeVaultError(w, r, "save blob", err)
			return
		}

		blob, err := comps.Blobs.GetMetadata(r.Context(), id)
		if err != nil {
			s.writeVaultError(w, r, "get blob metadata", err)
			return
		}
		resp := api.BlobUploadResponse{ID: id}
		if blob != nil {
			resp.Blob = *blob
		}
		writeOK(s, w, http.StatusCreated, resp)
	})
}

func (s *Server) handleListBlobs(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	blobs, err := comps.Blobs.ListAll(r.Context())
	if err != nil {
		s.writeVaultError(w, r, "list blobs", err)
		return
	}
	if blobs == nil {
		blobs = []models.Blob{}
	}
	writeOK(s, w, http.StatusOK, blobs)
}

func (s *Server) handleBlobStats(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	stats, err := comps.Blobs.GetStorageStats(r.Context())
	if err != nil {
		s.writeVaultError(w, r, "storage stats", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.StorageStats{
		Used:        stats.Used,
		Available:   stats.Available,
		PercentUsed: stats.PercentUsed,
		BlobCount:   stats.BlobCount,
		BlobBytes:   stats.BlobBytes,
	})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.lookupBlob(w, r)
	if !ok {
		return
	}
	writeOK(s, w, http.StatusOK, blob)
}

func (s *Server) handleGetBlobContent(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.lookupBlob(w, r)
	if !ok {
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	data, err := comps.Blobs.Load(r.Context(), blob.ID)
	if err != nil {
		s.writeVaultError(w, r, "load blob", err)
		return
	}
	if data == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("blob content missing"), ErrCodeBlobNotFound))
		return
	}

	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("ETag", strconv.Quote(blob.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log().Debug("write blob content", "id", blob.ID, "error", err)
	}
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.lookupBlob(w, r)
	if !ok {
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	if err := comps.Blobs.Delete(r.Context(), blob.ID); err != nil {
		s.writeVaultError(w, r, "delete blob", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: 1})
}

func (s *Server) handleRecountBlobs(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.gcLimiter, "gc", func() {
		comps, ok := s.components(w, r)
		if !ok {
			return
		}
		updated, err := comps.GC.RecalculateUsageCounts(r.Context())
		if err != nil {
			s.writeVaultError(w, r, "recalculate usage counts", err)
			return
		}
		writeOK(s, w, http.StatusOK, api.RecountResponse{Updated: updated})
	})
}

func (s *Server) lookupBlob(w http.ResponseWriter, r *http.Request) (*models.Blob, bool) {
	id, ok := s.blobIDOrBadRequest(w, r)
	if !ok {
		return nil, false
	}
	comps, ok := s.components(w, r)
	if !ok {
		return nil, false
	}
	blob, err := comps.Blobs.GetMetadata(r.Context(), id)
	if err != nil {
		s.writeVaultError(w, r, "get blob metadata", err)
		return nil, false
	}
	if blob == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("blob not found"), ErrCodeBlobNotFound))
		return nil, false
	}
	return blob, true
}

package server

import (
	"fmt"
	"net/http"

	"docvault/internal/api"
	"docvault/internal/models"
)

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	host := queryString(r, "host")
	document := queryString(r, "document")

	var (
		ops []models.Operation
		err error
	)
	switch {
	case host != "":
		ops, err = comps.Queue.LoadByHost(r.Context(), host)
	case document != "":
		ops, err = comps.Queue.LoadByDocument(r.Context(), document)
	default:
		ops, err = comps.Queue.LoadAll(r.Context())
	}
	if err != nil {
		s.writeVaultError(w, r, "list queue", err)
		return
	}

	out := make([]models.Operation, 0, len(ops))
	for _, op := range ops {
		if host != "" && document != "" && op.DocumentID != document {
			continue
		}
		out = append(out, op)
	}
	writeOK(s, w, http.StatusOK, out)
}

func (s *Server) handleQueueCount(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	var (
		count int
		err   error
	)
	if host := queryString(r, "host"); host != "" {
		count, err = comps.Queue.CountByHost(r.Context(), host)
	} else {
		count, err = comps.Queue.Count(r.Context())
	}
	if err != nil {
		s.writeVaultError(w, r, "count queue", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.QueueAddRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.DocumentID == "" || req.HostID == "" || req.Type == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("document_id, host_id and type are required"), ErrCodeMissingRequired))
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	op, err := comps.Queue.Save(r.Context(), models.Operation{
		ID:         req.ID,
		DocumentID: req.DocumentID,
		HostID:     req.HostID,
		Type:       req.Type,
		Payload:    req.Payload,
	})
	if err != nil {
		s.writeVaultError(w, r, "enqueue operation", err)
		return
	}
	writeOK(s, w, http.StatusCreated, op)
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	host := queryString(r, "host")
	document := queryString(r, "document")
	if host != "" && document != "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("host and document are mutually exclusive"), ErrCodeInvalidQuery))
		return
	}

	var (
		removed int
		err     error
	)
	switch {
	case host != "":
		removed, err = comps.Queue.ClearByHost(r.Context(), host)
	case document != "":
		removed, err = comps.Queue.ClearByDocument(r.Context(), document)
	default:
		removed, err = comps.Queue.ClearAll(r.Context())
	}
	if err != nil {
		s.writeVaultError(w, r, "clear queue", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: removed})
}

func (s *Server) handleRemoveQueued(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("operation id is required"), ErrCodeMissingRequired))
		return
	}
	comps, ok := s.components(w, r)
	if !ok {
		return
	}
	removed, err := comps.Queue.RemoveAll(r.Context(), []string{id})
	if err != nil {
		s.writeVaultError(w, r, "remove queued operation", err)
		return
	}
	writeOK(s, w, http.StatusOK, api.RemovedResponse{Removed: removed})
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docvault/internal/api"
	"docvault/internal/models"
	"docvault/internal/vault"
	"docvault/internal/vaulterr"
)

const (
	defaultJSONMaxBody = 1 << 20  // 1 MiB
	blobUploadMaxBody  = 64 << 20 // 64 MiB
)

// Error kinds that only exist at the HTTP boundary.
const (
	kindInternal          = "internal"
	kindUnauthorized      = "unauthorized"
	kindForbidden         = "forbidden"
	kindResourceExhausted = "resource_exhausted"
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	kind := errorKind(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "kind", kind, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		if kind == kindInternal {
			message = "internal error"
		}
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	body := api.ErrorBody{
		Kind:    kind,
		Message: message,
		Code:    numericCode,
	}
	switch vaulterr.Kind(kind) {
	case vaulterr.KindQuotaExceeded:
		body.Dismiss = api.DismissManual
	case vaulterr.KindStorage, vaulterr.KindUnavailable:
		body.Retryable = true
		body.Dismiss = api.DismissAuto
	}
	s.writeJSON(w, status, api.Failure(body))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// writeOK wraps data in a successful envelope.
func writeOK[T any](s *Server, w http.ResponseWriter, status int, data T) {
	s.writeJSON(w, status, api.OK(data))
}

type apiError struct {
	status  int
	kind    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, kind string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, kind: kind, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, string(vaulterr.KindInvalid), code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, string(vaulterr.KindNotFound), code, err)
}

// vaultFailure maps a kinded store error onto an HTTP error.
func vaultFailure(err error) error {
	var existing apiError
	if errors.As(err, &existing) {
		return existing
	}
	var kinded *vaulterr.Error
	if !errors.As(err, &kinded) {
		return makeAPIError(http.StatusInternalServerError, string(vaulterr.KindStorage), ErrCodeStoreFailure, err)
	}
	kind := string(kinded.Kind)
	switch kinded.Kind {
	case vaulterr.KindInvalid:
		return makeAPIError(http.StatusBadRequest, kind, ErrCodeInvalidArgument, err)
	case vaulterr.KindNotFound:
		return makeAPIError(http.StatusNotFound, kind, ErrCodeNotFound, err)
	case vaulterr.KindQuotaExceeded:
		return makeAPIError(http.StatusInsufficientStorage, kind, ErrCodeQuotaExceeded, err)
	case vaulterr.KindUnavailable:
		return makeAPIError(http.StatusServiceUnavailable, kind, ErrCodeUnavailable, err)
	case vaulterr.KindValidation:
		return makeAPIError(http.StatusInternalServerError, kind, ErrCodeValidationFailed, err)
	default:
		return makeAPIError(http.StatusInternalServerError, kind, ErrCodeStoreFailure, err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorKind(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.kind != "" {
		return apiErr.kind
	}
	switch status {
	case http.StatusBadRequest:
		return string(vaulterr.KindInvalid)
	case http.StatusUnauthorized:
		return kindUnauthorized
	case http.StatusForbidden:
		return kindForbidden
	case http.StatusNotFound:
		return string(vaulterr.KindNotFound)
	case http.StatusTooManyRequests:
		return kindResourceExhausted
	default:
		return kindInternal
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

// decodeOptionalJSONReq accepts an empty body and leaves dst untouched.
func (s *Server) decodeOptionalJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeJSON(w, r, dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
	return false
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

// writeVaultError logs busy databases as warnings and maps err by kind.
func (s *Server) writeVaultError(w http.ResponseWriter, r *http.Request, op string, err error) {
	err = vaultFailure(s.vault.Observe(op, err))
	s.writeServiceError(w, r, err)
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

// components opens the vault or writes the failure.
func (s *Server) components(w http.ResponseWriter, r *http.Request) (*vault.Components, bool) {
	comps, err := s.vault.Open(r.Context())
	if err != nil {
		s.writeServiceError(w, r, vaultFailure(err))
		return nil, false
	}
	return comps, true
}

func (s *Server) blobIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := models.ParseBlobID(r.PathValue("id"))
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid blob id"), ErrCodeInvalidID))
		return "", false
	}
	return id, true
}

func (s *Server) documentIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := models.ValidateDocumentID(id); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidID))
		return "", false
	}
	return id, true
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

func queryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

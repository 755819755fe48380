package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ericlevine/qrdecode"
	"github.com/ericlevine/qrdecode/internal/cache"
	"github.com/ericlevine/qrdecode/internal/loader"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 8 << 20

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type decodeRequest struct {
	Src string `json:"src"`
}

type decodeResponse struct {
	RequestID string                  `json:"request_id"`
	Count     int                     `json:"count"`
	Results   []qrdecode.DecodeResult `json:"results"`
}

type errorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing or malformed Content-Type")
		return
	}

	ctx := r.Context()
	var (
		ref  string
		data []byte
	)
	switch mediaType {
	case "multipart/form-data":
		maxBytes := s.maxBytes()
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.fail(w, r, &qrdecode.ImageLoadError{Ref: "upload", Err: loader.ErrTooLarge})
				return
			}
			writeError(w, r, http.StatusBadRequest, "malformed multipart body")
			return
		}
		file, hdr, err := r.FormFile("image")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, `missing "image" field`)
			return
		}
		defer file.Close()
		ref = "upload:" + hdr.Filename
		data, err = io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err == nil && int64(len(data)) > maxBytes {
			err = loader.ErrTooLarge
		}
		if err != nil {
			s.fail(w, r, &qrdecode.ImageLoadError{Ref: ref, Err: err})
			return
		}

	case "application/json":
		var req decodeRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
		if err := dec.Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed JSON body")
			return
		}
		if req.Src == "" {
			writeError(w, r, http.StatusBadRequest, `missing "src"`)
			return
		}
		ref = req.Src
		if data, err = s.fetcher.Fetch(ctx, ref); err != nil {
			s.fail(w, r, err)
			return
		}

	default:
		writeError(w, r, http.StatusBadRequest, "unsupported Content-Type "+mediaType)
		return
	}

	results, err := s.decodeBytes(ctx, ref, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decodeResponse{
		RequestID: RequestIDFrom(ctx),
		Count:     len(results),
		Results:   results,
	})
}

// decodeBytes scans one encoded image, consulting the result cache first.
func (s *Server) decodeBytes(ctx context.Context, ref string, data []byte) ([]qrdecode.DecodeResult, error) {
	key := cache.Key(data)
	if s.cache != nil {
		results, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			cacheLookupsTotal.WithLabelValues("error").Inc()
			s.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			cacheLookupsTotal.WithLabelValues("hit").Inc()
			return results, nil
		default:
			cacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	img, err := loader.DecodeBytes(data)
	if err != nil {
		return nil, &qrdecode.ImageLoadError{Ref: ref, Err: err}
	}

	if timeout := s.cfg.Scan.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	results, err := s.scanner.DecodeImage(ctx, img)
	scanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	symbolsDecodedTotal.Add(float64(len(results)))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, results); err != nil {
			s.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return results, nil
}

func (s *Server) maxBytes() int64 {
	if n := s.cfg.Loader.MaxBytes; n > 0 {
		return n
	}
	return loader.DefaultMaxBytes
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("decode failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	}
	writeError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, qrdecode.ErrImageLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{RequestID: RequestIDFrom(r.Context()), Error: msg})
}

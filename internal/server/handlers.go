package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/jonathan/iiif-validator/internal/server/middleware"
)

// Warnings derived from how the manifest was served.
const (
	warnContentType = "WARNING: Manifest should be sent as application/json or application/ld+json, not %s\n"
	warnCORS        = "WARNING: Manifest should be sent with Access-Control-Allow-Origin: *\n"
)

// ValidateRequest holds the query parameters of GET /validate.
// Fields are checked in order, so a bad callback is reported before a bad URL.
type ValidateRequest struct {
	Callback string `validate:"omitempty,max=128,jsonp_callback"`
	Version  string `validate:"omitempty,max=16,printascii"`
	Accept   bool
	URL      string `validate:"required,http_url"`
}

// BodyRequest holds the query parameters of POST /validate.
type BodyRequest struct {
	Callback string `validate:"omitempty,max=128,jsonp_callback"`
	Version  string `validate:"omitempty,max=16,printascii"`
}

// urlFailure is the record returned when the manifest could not be obtained.
type urlFailure struct {
	Okay  int    `json:"okay"`
	Error string `json:"error"`
	URL   string `json:"url"`
}

func (s *Server) parseValidateRequest(r *http.Request) ValidateRequest {
	q := r.URL.Query()
	req := ValidateRequest{
		Callback: q.Get("callback"),
		Version:  q.Get("version"),
		URL:      strings.TrimSpace(q.Get("url")),
	}
	if req.Version == "" {
		req.Version = s.defaultVersion
	}
	req.Accept, _ = strconv.ParseBool(q.Get("accept"))
	return req
}

// checkRequest validates req and reports the first offending field.
func (s *Server) checkRequest(req any) *ErrValidation {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs govalidator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ErrValidation{Field: strings.ToLower(fe.Field()), Message: fmt.Sprintf("failed %q check", fe.Tag())}
	}
	return &ErrValidation{Field: "request", Message: err.Error()}
}

// handleValidateURL fetches the manifest at ?url= and validates it.
func (s *Server) handleValidateURL(w http.ResponseWriter, r *http.Request) {
	req := s.parseValidateRequest(r)

	if verr := s.checkRequest(req); verr != nil {
		if verr.Field != "url" {
			s.errorResponse(w, verr)
			return
		}
		s.writeRecord(w, req.Callback, urlFailure{Error: msgBadScheme, URL: req.URL})
		return
	}

	key := fmt.Sprintf("%s\x00%s\x00%t", req.URL, req.Version, req.Accept)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		// The fetch outlives a cancelled caller because other requests may share it.
		return s.fetchAndCheck(context.WithoutCancel(r.Context()), req)
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context()).String()).
			Str("url", req.URL).
			Msg("validation failed to run")
		s.errorResponse(w, &ErrCheckFailed{Cause: err})
		return
	}
	if shared {
		s.log.Debug().Str("url", req.URL).Msg("validation result shared")
	}

	switch body := v.(type) {
	case []byte:
		s.writeJSON(w, req.Callback, body)
	default:
		s.writeRecord(w, req.Callback, body)
	}
}

// fetchAndCheck returns either the encoded check result or a urlFailure.
func (s *Server) fetchAndCheck(ctx context.Context, req ValidateRequest) (any, error) {
	log := s.log.WithURL(req.URL)

	result, err := s.checker.Fetch(ctx, req.URL, req.Version, req.Accept)
	if err != nil {
		log.Warn().Err(err).Msg("manifest fetch failed")
		return urlFailure{Error: msgCannotFetch, URL: req.URL}, nil
	}

	var warnings []string
	ct := result.ContentType
	if !strings.HasPrefix(ct, "application/json") && !strings.HasPrefix(ct, "application/ld+json") {
		warnings = append(warnings, fmt.Sprintf(warnContentType, ct))
	}
	if result.Header.Get("Access-Control-Allow-Origin") != "*" {
		warnings = append(warnings, warnCORS)
	}

	url := req.URL
	return s.checker.CheckJSON(result.Text, req.Version, &url, warnings)
}

// handleValidateBody validates a manifest posted as the request body.
func (s *Server) handleValidateBody(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := BodyRequest{
		Callback: q.Get("callback"),
		Version:  q.Get("version"),
	}
	if req.Version == "" {
		req.Version = s.defaultVersion
	}
	if verr := s.checkRequest(req); verr != nil {
		s.errorResponse(w, verr)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, &ErrBodyTooLarge{Limit: tooLarge.Limit})
			return
		}
		s.errorResponse(w, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if !utf8.Valid(body) {
		s.errorResponse(w, &ErrValidation{Field: "body", Message: "not valid UTF-8"})
		return
	}

	out, err := s.checker.CheckJSON(string(body), req.Version, nil, nil)
	if err != nil {
		s.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context()).String()).
			Msg("validation failed to run")
		s.errorResponse(w, &ErrCheckFailed{Cause: err})
		return
	}
	s.writeJSON(w, req.Callback, out)
}

func (s *Server) writeRecord(w http.ResponseWriter, callback string, record any) {
	body, err := json.Marshal(record)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, callback, body)
}

// writeJSON writes already encoded JSON, wrapped in callback(...) when one is given.
func (s *Server) writeJSON(w http.ResponseWriter, callback string, body []byte) {
	if callback == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, callback+"(")
	_, _ = w.Write(body)
	_, _ = io.WriteString(w, ")")
}

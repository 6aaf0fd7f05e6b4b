package fakebackend

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/iguit0/ai-chatbot-personality/pkg/casing"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// httpError is answered as {"detail": Detail} with Status, the shape FastAPI
// uses for HTTPException.
type httpError struct {
	Status int
	Detail string
}

func (e *httpError) Error() string {
	return e.Detail
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := casing.MarshalWire(payload)
	if err != nil {
		log.Error().Err(err).Msg("could not encode response")
		http.Error(w, `{"detail":"could not encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}

func respondError(w http.ResponseWriter, err error) {
	var he *httpError
	if !errors.As(err, &he) {
		he = &httpError{Status: http.StatusInternalServerError, Detail: "Server error: " + err.Error()}
	}
	respondJSON(w, he.Status, errorResponse{Detail: he.Detail})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}

// Package httpapi is the HTTP adapter for the request-handlers
// component: it decodes CBOR-framed bodies and small opaque headers,
// composes internal/validator checks with internal/registry mutators,
// and maps internal/apperr kinds to status codes. Handlers never touch
// internal/storage directly; the registry is the sole owner of the
// storage handle.
package httpapi

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/registry"
)

// Server composes the registry with the HTTP-specific concerns: route
// table, rate limiters, and request logging.
type Server struct {
	registry    *registry.Registry
	logger      *log.Logger
	development bool

	mux *http.ServeMux

	rlRegister   *multiLimiter
	rlAdminAllow *multiLimiter
	rlTopicKey   *multiLimiter
	rlTopicKeys  *multiLimiter
}

// New constructs a Server over reg. logger defaults to log.Default()
// if nil. development gates /admin/reset.
func New(reg *registry.Registry, logger *log.Logger, development bool) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		registry:    reg,
		logger:      logger,
		development: development,
		mux:         http.NewServeMux(),

		rlRegister:   newMultiLimiter(rate10PerMinute, 10, time.Hour),
		rlAdminAllow: newMultiLimiter(rate10PerMinute, 10, time.Hour),
		rlTopicKey:   newMultiLimiter(rate30PerMinute, 30, time.Hour),
		rlTopicKeys:  newMultiLimiter(rate30PerMinute, 30, time.Hour),
	}
	s.routes()
	return s
}

// Handler returns the top-level http.Handler, wrapping route dispatch
// with panic recovery and per-request logging.
func (s *Server) Handler() http.Handler {
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rc := recover(); rc != nil {
			s.logger.Printf("panic handling %s %s: %v", r.Method, r.URL.Path, rc)
			http.Error(w, "internal error", http.StatusInternalServerError)
			rec.status = http.StatusInternalServerError
		}
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	}()

	s.addDefaultHeaders(rec, r)
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(rec, r)
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
		HeaderUser, HeaderDevice, HeaderAuth, HeaderUsername, HeaderTargetUser,
		HeaderCount, HeaderReceiver, HeaderApp, HeaderStart, "Content-Type",
	}, ", "))
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

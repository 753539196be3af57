package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/negroni/v3"

	"github.com/alepar/airthings/airthings"
)

// ReadingSource is implemented by coordinator.Coordinator.
type ReadingSource interface {
	Reading() (airthings.Reading, bool, error)
}

type handler struct {
	source   ReadingSource
	gatherer prometheus.Gatherer
	logger   log.FieldLogger
}

// NewHandler returns the full HTTP stack: recovery and access logging in
// front of the router. Metrics from gatherer are exposed next to the
// reading gauges on every scrape.
func NewHandler(source ReadingSource, gatherer prometheus.Gatherer, logger log.FieldLogger) http.Handler {
	router := mux.NewRouter()
	InitializeRouter(router, source, gatherer, logger)

	recovery := negroni.NewRecovery()
	recovery.Logger = logger
	recovery.PrintStack = false

	accessLog := negroni.NewLogger()
	accessLog.ALogger = logger

	n := negroni.New(recovery, accessLog)
	n.UseHandler(router)
	return n
}

// Add routes to router. Anything not routed answers 501.
func InitializeRouter(r *mux.Router, source ReadingSource, gatherer prometheus.Gatherer, logger log.FieldLogger) {
	h := &handler{source: source, gatherer: gatherer, logger: logger}
	r.HandleFunc("/", h.Reading).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(notImplemented)
	r.MethodNotAllowedHandler = http.HandlerFunc(notImplemented)
}

func (h *handler) Reading(w http.ResponseWriter, r *http.Request) {
	reading, cached, err := h.source.Reading()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body, err := json.Marshal(reading)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logResponse(r, cached, body)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

func (h *handler) Metrics(w http.ResponseWriter, r *http.Request) {
	reading, cached, err := h.source.Reading()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logResponse(r, cached, nil)

	scrape := prometheus.NewRegistry()
	scrape.MustRegister(readingCollector{reading: reading})

	gatherers := prometheus.Gatherers{scrape}
	if h.gatherer != nil {
		gatherers = append(gatherers, h.gatherer)
	}
	promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{
		ErrorLog: h.logger,
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	}).ServeHTTP(w, r)
}

func (h *handler) logResponse(r *http.Request, cached bool, body []byte) {
	entry := h.logger.WithFields(log.Fields{
		"ip":     clientIP(r),
		"path":   r.URL.Path,
		"cached": cached,
	})
	if body != nil {
		entry = entry.WithField("data", string(body))
	}
	if cached {
		entry.Info("responding with cached data")
	} else {
		entry.Info("responding with new data")
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithField("ip", clientIP(r)).Errorf("failed to get reading: %s", err)

	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(body)
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

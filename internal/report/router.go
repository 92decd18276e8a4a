package report

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmaas/ivcrush/internal/journal"
	"github.com/dmaas/ivcrush/internal/monitor"
	"github.com/dmaas/ivcrush/pkg/logger"
)

// HealthSource reports the current process health. Implemented by the
// orchestrator.
type HealthSource interface {
	Health() monitor.HealthSnapshot
}

// NewRouter builds the read-only reporting router.
func NewRouter(store journal.Store, healthLog *monitor.HealthLog, source HealthSource, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler(source)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/trades", tradesHandler(store)).Methods("GET")
	api.HandleFunc("/health", healthHistoryHandler(healthLog)).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func healthzHandler(source HealthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := source.Health()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "ivcrush",
			"state":   snap.State,
			"breaker": snap.Breaker.State.String(),
		})
	}
}

// tradeView is the JSON shape of a journal entry.
type tradeView struct {
	OpenedAt       time.Time  `json:"opened_at"`
	Ticker         string     `json:"ticker"`
	Quantity       int        `json:"quantity"`
	ShortSymbol    string     `json:"short_symbol"`
	ShortExpiry    string     `json:"short_expiry"`
	ShortStrike    float64    `json:"short_strike"`
	ShortPrice     float64    `json:"short_price"`
	LongSymbol     string     `json:"long_symbol"`
	LongExpiry     string     `json:"long_expiry"`
	LongStrike     float64    `json:"long_strike"`
	LongPrice      float64    `json:"long_price"`
	Recommendation string     `json:"recommendation"`
	Status         string     `json:"status"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	PnL            *float64   `json:"pnl,omitempty"`
}

func tradesHandler(store journal.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := store.Entries(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read journal"})
			return
		}

		views := make([]tradeView, 0, len(entries))
		for _, e := range entries {
			v := tradeView{
				OpenedAt:       e.OpenedAt,
				Ticker:         e.Ticker,
				Quantity:       e.Quantity,
				ShortSymbol:    e.ShortSymbol,
				ShortExpiry:    e.ShortExpiry.Format("2006-01-02"),
				ShortStrike:    e.ShortStrike,
				ShortPrice:     e.ShortPrice,
				LongSymbol:     e.LongSymbol,
				LongExpiry:     e.LongExpiry.Format("2006-01-02"),
				LongStrike:     e.LongStrike,
				LongPrice:      e.LongPrice,
				Recommendation: e.Recommendation,
				Status:         string(e.Status),
			}
			if !e.ClosedAt.IsZero() {
				closedAt := e.ClosedAt
				v.ClosedAt = &closedAt
			}
			if e.HasPnL {
				pnl := e.PnL
				v.PnL = &pnl
			}
			views = append(views, v)
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":  len(views),
			"trades": views,
		})
	}
}

func healthHistoryHandler(healthLog *monitor.HealthLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}

		snaps, err := healthLog.Recent(limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read health log"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":     len(snaps),
			"snapshots": snaps,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")
					writeJSON(w, http.StatusInternalServerError, map[string]string{
						"error": "Internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

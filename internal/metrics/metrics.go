package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Budget metrics
	BudgetTotalMinutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qinghe_budget_total_minutes",
			Help: "Self-discipline minutes earned today",
		},
	)

	CountdownRemainingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qinghe_countdown_remaining_seconds",
			Help: "Seconds left on today's countdown",
		},
	)

	CountdownExhausted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qinghe_countdown_exhausted",
			Help: "1 when today's budget has run out",
		},
	)

	// Usage metrics
	UsageSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qinghe_usage_seconds_total",
			Help: "Total seconds of restricted app usage recorded",
		},
		[]string{"app"},
	)

	// Override metrics
	PenaltyCancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qinghe_penalty_cancellations_total",
			Help: "Restriction cancellations paid for with budget",
		},
		[]string{"result"},
	)

	TemporaryUnlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qinghe_temporary_unlocks_total",
			Help: "Temporary unlocks granted",
		},
	)

	// Collaborator metrics
	EnforcementErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qinghe_enforcement_errors_total",
			Help: "Failed restriction enforcer calls",
		},
		[]string{"op"},
	)

	TelemetryPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qinghe_telemetry_polls_total",
			Help: "Usage telemetry readings by outcome",
		},
		[]string{"result"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qinghe_events_total",
			Help: "Countdown events published",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		BudgetTotalMinutes,
		CountdownRemainingSeconds,
		CountdownExhausted,
		UsageSecondsTotal,
		PenaltyCancellations,
		TemporaryUnlocks,
		EnforcementErrors,
		TelemetryPolls,
		EventsTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}

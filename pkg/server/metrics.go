package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instruments. Each Server
// carries its own registry so that tests can build several servers in
// one process without duplicate-registration panics.
type Metrics struct {
	ActiveConnections    prometheus.Gauge
	ConnectionsTotal     prometheus.Counter
	AuthSuccessTotal     prometheus.Counter
	AuthFailedTotal      prometheus.Counter
	ChatMessagesTotal    prometheus.Counter
	ChannelsCreatedTotal prometheus.Counter
	BroadcastErrorsTotal prometheus.Counter
	VoicePacketsIn       prometheus.Counter
	VoicePacketsOut      prometheus.Counter
	VoicePacketsDropped  prometheus.Counter
	VoiceBytesIn         prometheus.Counter
	VoiceBytesOut        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "voclink_connections_active",
			Help: "Currently open control connections.",
		}),
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_connections_total",
			Help: "Control connections accepted since start.",
		}),
		AuthSuccessTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_auth_success_total",
			Help: "Successful logins.",
		}),
		AuthFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_auth_failed_total",
			Help: "Failed login attempts.",
		}),
		ChatMessagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_chat_messages_total",
			Help: "Chat messages relayed.",
		}),
		ChannelsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_channels_created_total",
			Help: "Channels created by users.",
		}),
		BroadcastErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_broadcast_errors_total",
			Help: "Failed writes while fanning out a broadcast.",
		}),
		VoicePacketsIn: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_voice_packets_in_total",
			Help: "Voice datagrams received.",
		}),
		VoicePacketsOut: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_voice_packets_out_total",
			Help: "Voice datagrams forwarded.",
		}),
		VoicePacketsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_voice_packets_dropped_total",
			Help: "Voice datagrams dropped before fan-out.",
		}),
		VoiceBytesIn: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_voice_bytes_in_total",
			Help: "Voice payload bytes received.",
		}),
		VoiceBytesOut: f.NewCounter(prometheus.CounterOpts{
			Name: "voclink_voice_bytes_out_total",
			Help: "Voice payload bytes forwarded.",
		}),
	}
}

// startMetricsHTTP serves /metrics and /healthz if an address is
// configured. Shut down via the server context.
func (s *Server) startMetricsHTTP() {
	if s.cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

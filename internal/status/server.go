// Package status serves collectord's operational status endpoint:
// a health check, a point-in-time JSON snapshot, and a websocket feed
// of live metrics and anomalies, adapted from the teacher's HTTP
// traffic dashboard to describe the collector watching itself.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cynexa/collectord/internal/config"
)

// FollowerStatus is one tailed source's point-in-time state.
type FollowerStatus struct {
	Path      string `json:"path"`
	State     string `json:"state"`
	LinesSeen int64  `json:"lines_seen"`
}

// Snapshot is the collector's full operational state at one instant.
type Snapshot struct {
	Followers   []FollowerStatus `json:"followers"`
	BufferDepth int              `json:"buffer_depth"`
	SpoolBytes  int64            `json:"spool_bytes"`
}

// Provider supplies the current Snapshot. *collector.Collector
// satisfies this.
type Provider interface {
	Snapshot() Snapshot
}

// Server serves /healthz, /api/status, a live /ws feed, and a small
// built-in HTML dashboard.
type Server struct {
	config    config.DashboardConfig
	provider  Provider
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan interface{}
	logger    *log.Logger
}

// NewServer creates a status Server. It listens only when started via
// Run with a non-zero configured port (spec.md's status module is
// opt-in).
func NewServer(cfg config.DashboardConfig, provider Provider, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config:   cfg,
		provider: provider,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan interface{}, 100),
		logger:    logger,
	}
}

// Publish pushes one message (a *models.Metrics or models.Anomaly) to
// all connected websocket clients. Non-blocking: a full broadcast
// buffer drops the message and logs it, rather than stalling the
// caller's pipeline tick.
func (s *Server) Publish(message interface{}) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Printf("status: broadcast buffer full, dropping message")
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts it down gracefully. A Port of 0 disables the server entirely.
func (s *Server) Run(ctx context.Context) {
	if s.config.Port == 0 {
		<-ctx.Done()
		return
	}

	go s.broadcastLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleIndex)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		s.logger.Printf("status: listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("status: server error: %v", err)
		}
	}()

	<-ctx.Done()
	server.Shutdown(context.Background())
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.broadcast:
			s.clientsMu.RLock()
			for client := range s.clients {
				if err := client.WriteJSON(message); err != nil {
					s.logger.Printf("status: websocket write error: %v", err)
					client.Close()
					s.removeClient(client)
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("status: websocket upgrade error: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.removeClient(conn)
			break
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, conn)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.provider.Snapshot())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>collectord status</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #1a1a1a; color: #fff; }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { color: #4CAF50; }
        .metrics-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 20px; margin: 20px 0; }
        .metric-card { background: #2a2a2a; padding: 20px; border-radius: 8px; border-left: 4px solid #4CAF50; }
        .metric-value { font-size: 2em; font-weight: bold; color: #4CAF50; }
        .metric-label { color: #999; font-size: 0.9em; }
        .anomaly { background: #ff5722; padding: 15px; margin: 10px 0; border-radius: 8px; border-left: 4px solid #d32f2f; }
        .anomaly-high { background: #ff5722; }
        .anomaly-critical { background: #d32f2f; }
        .anomaly-medium { background: #ff9800; }
        .anomaly-low { background: #ffc107; }
        .status { color: #4CAF50; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="container">
        <h1>collectord</h1>
        <div class="status" id="status">Connecting to server...</div>

        <div class="metrics-grid" id="metrics">
            <div class="metric-card">
                <div class="metric-label">Events/sec</div>
                <div class="metric-value" id="events-per-sec">0</div>
            </div>
            <div class="metric-card">
                <div class="metric-label">Send Failure Rate</div>
                <div class="metric-value" id="failure-rate">0%</div>
            </div>
            <div class="metric-card">
                <div class="metric-label">Avg Flush Latency</div>
                <div class="metric-value" id="flush-latency">0ms</div>
            </div>
            <div class="metric-card">
                <div class="metric-label">Spool Bytes</div>
                <div class="metric-value" id="spool-bytes">0</div>
            </div>
        </div>

        <h2>Recent Anomalies</h2>
        <div id="anomalies"></div>
    </div>

    <script>
        const ws = new WebSocket('ws://' + window.location.host + '/ws');
        const statusEl = document.getElementById('status');
        const anomaliesEl = document.getElementById('anomalies');

        ws.onopen = () => { statusEl.textContent = 'connected'; };
        ws.onclose = () => { statusEl.textContent = 'disconnected'; };

        ws.onmessage = (event) => {
            const data = JSON.parse(event.data);

            if (data.events_per_sec !== undefined) {
                document.getElementById('events-per-sec').textContent = data.events_per_sec.toFixed(2);
                document.getElementById('failure-rate').textContent = (data.failure_rate * 100).toFixed(2) + '%';
                document.getElementById('flush-latency').textContent = data.avg_flush_latency_ms.toFixed(2) + 'ms';
                document.getElementById('spool-bytes').textContent = data.spool_bytes;
            } else if (data.type) {
                const div = document.createElement('div');
                div.className = 'anomaly anomaly-' + data.severity;
                div.innerHTML = '<strong>' + data.type.toUpperCase() + '</strong> - ' +
                    'Severity: ' + data.severity + ' | ' + data.description + '<br>' +
                    'Metric: ' + data.metric + ' | Expected: ' + data.expected_value.toFixed(2) +
                    ' | Actual: ' + data.actual_value.toFixed(2);
                anomaliesEl.insertBefore(div, anomaliesEl.firstChild);
                while (anomaliesEl.children.length > 10) {
                    anomaliesEl.removeChild(anomaliesEl.lastChild);
                }
            }
        };
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

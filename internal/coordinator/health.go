package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// Pinger checks a backing store. *ledger.Client implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusReporter exposes worker liveness. *Coordinator implements it.
type StatusReporter interface {
	Alive() int
	Status() []WorkerStatus
}

// HealthResponse is the JSON body served on /healthz.
type HealthResponse struct {
	Status  string         `json:"status"`
	Alive   int            `json:"alive"`
	Workers []WorkerStatus `json:"workers"`
	Redis   string         `json:"redis,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// HealthServer serves GET /healthz. It reports unhealthy when no worker is
// alive or, if a ledger is attached, when Redis does not answer.
type HealthServer struct {
	reporter StatusReporter
	ledger   Pinger
	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a health server on port. ledger may be nil.
func NewHealthServer(reporter StatusReporter, ledger Pinger, port int) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		reporter: reporter,
		ledger:   ledger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
	mux.HandleFunc("/healthz", hs.handleHealthz)
	return hs
}

// Start binds the port and serves in a background goroutine. Bind errors are
// returned synchronously.
func (hs *HealthServer) Start() error {
	ln, err := net.Listen("tcp", hs.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind health server on %s: %w", hs.server.Addr, err)
	}
	hs.listener = ln

	go func() {
		log.Printf("[DEBUG] Health server starting on %s", ln.Addr())
		if err := hs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] Health server error: %v", err)
		}
		log.Printf("[DEBUG] Health server stopped")
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (hs *HealthServer) Addr() net.Addr {
	if hs.listener == nil {
		return nil
	}
	return hs.listener.Addr()
}

// Shutdown gracefully stops the server.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.listener == nil {
		return nil
	}
	log.Printf("[DEBUG] Shutting down health server...")
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Alive:   hs.reporter.Alive(),
		Workers: hs.reporter.Status(),
	}
	statusCode := http.StatusOK

	if response.Alive == 0 {
		response.Status = "unhealthy"
		response.Error = ErrAllWorkersStopped.Error()
		statusCode = http.StatusServiceUnavailable
	}

	if hs.ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := hs.ledger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			statusCode = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[ERROR] Failed to encode health response: %v", err)
	}
}

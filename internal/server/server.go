package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gossip_membership/internal/dataType"
	"gossip_membership/internal/telemetry"
)

type memberJSON struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Heartbeat   uint64 `json:"heartbeat"`
	Incarnation uint64 `json:"incarnation"`
	Status      string `json:"status"`
	LastContact string `json:"last_contact"`
}

type tableJSON struct {
	Self      string       `json:"self"`
	Online    bool         `json:"online"`
	Suspicion bool         `json:"suspicion"`
	Digest    string       `json:"digest"`
	Members   []memberJSON `json:"members"`
}

func toJSON(m dataType.Member) memberJSON {
	return memberJSON{
		ID:          m.ID,
		Address:     m.Address.String(),
		Heartbeat:   m.Heartbeat,
		Incarnation: m.Incarnation,
		Status:      m.Status.String(),
		LastContact: m.LastContact.Format(time.RFC3339Nano),
	}
}

// NewStatusHandler serves read-only views of the node.
func NewStatusHandler(node *Node) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/members", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		table := node.Table()
		members := table.Sorted()
		body := tableJSON{
			Self:      table.SelfID(),
			Online:    node.Online(),
			Suspicion: node.SuspicionEnabled(),
			Digest:    fmt.Sprintf("%016x", table.Digest()),
			Members:   make([]memberJSON, 0, len(members)),
		}
		for _, m := range members {
			body.Members = append(body.Members, toJSON(m))
		}
		writeJSON(w, body)
	})

	mux.HandleFunc("/self", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, toJSON(node.Table().Self()))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !node.Online() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("offline"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

// StartStatusServer serves NewStatusHandler on port until ctx is cancelled.
func StartStatusServer(ctx context.Context, port int, node *Node, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewStatusHandler(node),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("status server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

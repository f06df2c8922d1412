// Package server exposes the wave portal over local HTTP/JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/metrics"
	"github.com/comigor/waveportal-go/internal/portal"
)

const maxWaveBytes = 4 << 10

// Portal is the view state served over HTTP. *portal.Controller satisfies it.
type Portal interface {
	View() portal.View
	Connect()
	Disconnect()
	Wave(ctx context.Context, text string) error
}

type waveJSON struct {
	Address string    `json:"address"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Block   uint64    `json:"block,omitempty"`
}

type stateJSON struct {
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
	Draft   string `json:"draft,omitempty"`
	Waves   int    `json:"waves"`
	LastTx  string `json:"last_tx,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toState(v portal.View) stateJSON {
	s := stateJSON{State: string(v.State), Draft: v.Draft, Waves: len(v.Messages)}
	if v.Address != (common.Address{}) {
		s.Address = v.Address.Hex()
	}
	if v.LastTx != (common.Hash{}) {
		s.LastTx = v.LastTx.Hex()
	}
	if v.LastError != nil {
		s.Error = v.LastError.Error()
	}
	return s
}

func toWaves(msgs []contract.Message) []waveJSON {
	return lo.Map(msgs, func(m contract.Message, _ int) waveJSON {
		w := waveJSON{Address: m.Sender.Hex(), Time: m.SentAt.UTC(), Message: m.Text, Block: m.Block}
		if !m.Event.IsZero() {
			w.TxHash = m.Event.TxHash.Hex()
		}
		return w
	})
}

// NewMux routes the portal endpoints and /metrics.
func NewMux(p Portal) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toState(p.View()))
	})

	mux.HandleFunc("GET /waves", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toWaves(p.View().Messages))
	})

	mux.HandleFunc("POST /connect", func(w http.ResponseWriter, r *http.Request) {
		logger.L.Info("connect request")
		p.Connect()
		writeJSON(w, http.StatusAccepted, toState(p.View()))
	})

	mux.HandleFunc("POST /disconnect", func(w http.ResponseWriter, r *http.Request) {
		logger.L.Info("disconnect request")
		p.Disconnect()
		writeJSON(w, http.StatusAccepted, toState(p.View()))
	})

	// the body is the message text, sent as is
	mux.HandleFunc("POST /wave", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWaveBytes))
		if err != nil {
			logger.L.Error("read body error", "err", err)
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		logger.L.Info("wave request", "length", len(body))
		switch err := p.Wave(r.Context(), string(body)); {
		case errors.Is(err, portal.ErrNotConnected), errors.Is(err, portal.ErrSubmitInFlight):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			logger.L.Error("wave request failed", "err", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, toState(p.View()))
	})

	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("write response error", "err", err)
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/portal"
)

type mockPortal struct {
	view        portal.View
	connects    int
	disconnects int
	waves       []string
	WaveFunc    func(ctx context.Context, text string) error
}

func (p *mockPortal) View() portal.View { return p.view }
func (p *mockPortal) Connect()          { p.connects++ }
func (p *mockPortal) Disconnect()       { p.disconnects++ }

func (p *mockPortal) Wave(ctx context.Context, text string) error {
	if p.WaveFunc != nil {
		return p.WaveFunc(ctx, text)
	}
	p.waves = append(p.waves, text)
	return nil
}

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestState(t *testing.T) {
	p := &mockPortal{view: portal.View{
		State:     portal.StateConnectedWithMessages,
		Address:   alice,
		Messages:  []contract.Message{{Text: "gm"}},
		LastError: errors.New("boom"),
	}}
	rec := do(t, NewMux(p), http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got stateJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, stateJSON{State: "ConnectedWithMessages", Address: alice.Hex(), Waves: 1, Error: "boom"}, got)
}

func TestWaves(t *testing.T) {
	sent := time.Unix(1_650_000_000, 0)
	tx := common.BytesToHash([]byte{7})
	p := &mockPortal{view: portal.View{
		State: portal.StateConnectedWithMessages,
		Messages: []contract.Message{
			{Sender: alice, SentAt: sent, Text: "first"},
			{Sender: alice, SentAt: sent.Add(time.Minute), Text: "second", Event: contract.EventID{TxHash: tx}, Block: 9},
		},
	}}
	rec := do(t, NewMux(p), http.MethodGet, "/waves", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []waveJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Message)
	require.Equal(t, alice.Hex(), got[0].Address)
	require.True(t, sent.Equal(got[0].Time))
	require.Empty(t, got[0].TxHash)
	require.Equal(t, tx.Hex(), got[1].TxHash)
	require.EqualValues(t, 9, got[1].Block)
}

func TestConnectDisconnect(t *testing.T) {
	p := &mockPortal{view: portal.View{State: portal.StateDisconnected}}
	mux := NewMux(p)

	require.Equal(t, http.StatusAccepted, do(t, mux, http.MethodPost, "/connect", "").Code)
	require.Equal(t, 1, p.connects)
	require.Equal(t, http.StatusAccepted, do(t, mux, http.MethodPost, "/disconnect", "").Code)
	require.Equal(t, 1, p.disconnects)

	require.Equal(t, http.StatusMethodNotAllowed, do(t, mux, http.MethodGet, "/connect", "").Code)
}

func TestWave(t *testing.T) {
	p := &mockPortal{view: portal.View{State: portal.StateConnectedEmpty, Address: alice}}
	rec := do(t, NewMux(p), http.MethodPost, "/wave", "hello chain")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"hello chain"}, p.waves)

	// an empty body is still sent; the contract decides
	rec = do(t, NewMux(p), http.MethodPost, "/wave", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"hello chain", ""}, p.waves)
}

func TestWave_Rejected(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "not connected", err: &contract.WriteError{Err: portal.ErrNotConnected}, code: http.StatusConflict},
		{name: "in flight", err: portal.ErrSubmitInFlight, code: http.StatusConflict},
		{name: "stopped", err: portal.ErrStopped, code: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockPortal{WaveFunc: func(context.Context, string) error { return tc.err }}
			rec := do(t, NewMux(p), http.MethodPost, "/wave", "hi")
			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestWave_TooLarge(t *testing.T) {
	p := &mockPortal{view: portal.View{State: portal.StateConnectedEmpty}}
	rec := do(t, NewMux(p), http.MethodPost, "/wave", strings.Repeat("x", maxWaveBytes+1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, p.waves)
}

func TestMetrics(t *testing.T) {
	rec := do(t, NewMux(&mockPortal{}), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "waveportal_active_subscriptions")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, addr, NewMux(&mockPortal{})) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/state")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

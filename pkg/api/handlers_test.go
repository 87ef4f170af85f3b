package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/db"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/migrations"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/quote"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/status"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/chainflip-io/chainflip-backend-sub000/pkg/config"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	database, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

type stubResolver struct {
	status *status.SwapStatus
	err    error
}

func (s *stubResolver) Resolve(ctx context.Context, id string) (*status.SwapStatus, error) {
	return s.status, s.err
}

type stubOpener struct {
	addr  *archive.DepositAddress
	err   error
	calls int
}

func (s *stubOpener) RequestDepositAddress(
	ctx context.Context,
	srcAsset, destAsset swap.Asset,
	destAddress string,
	amount *big.Int,
	commissionBps uint32,
) (*archive.DepositAddress, error) {
	s.calls++
	return s.addr, s.err
}

type stubQuoter struct {
	result *quote.Result
	err    error
}

func (s *stubQuoter) Quote(ctx context.Context, srcAsset, destAsset swap.Asset, amount *big.Int) (*quote.Result, error) {
	return s.result, s.err
}

type testDeps struct {
	db       *sql.DB
	resolver *stubResolver
	opener   *stubOpener
	quoter   *stubQuoter
}

func newTestHandler(t *testing.T, deps testDeps) *Handler {
	t.Helper()

	if deps.db == nil {
		deps.db = setupTestDB(t)
	}
	if deps.resolver == nil {
		deps.resolver = &stubResolver{}
	}
	if deps.opener == nil {
		deps.opener = &stubOpener{}
	}
	if deps.quoter == nil {
		deps.quoter = &stubQuoter{}
	}

	cfg := &config.APIConfig{
		DepositBounds: map[string]config.DepositBounds{
			"ETH": {Min: "1000", Max: "1000000000000000000000"},
		},
	}
	cfg.ApplyDefaults()

	return NewHandler(deps.db, deps.resolver, deps.opener, deps.quoter, nil, cfg, logger.NewNopLogger())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetSwap(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newTestHandler(t, testDeps{resolver: &stubResolver{
			status: &status.SwapStatus{State: status.StateComplete, SwapID: 7},
		}})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/7", nil)
		req.SetPathValue("id", "7")
		w := httptest.NewRecorder()
		h.GetSwap(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var got status.SwapStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Equal(t, status.StateComplete, got.State)
		require.Equal(t, uint64(7), got.SwapID)
	})

	t.Run("not found", func(t *testing.T) {
		h := newTestHandler(t, testDeps{})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/99", nil)
		req.SetPathValue("id", "99")
		w := httptest.NewRecorder()
		h.GetSwap(w, req)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("resolver failure", func(t *testing.T) {
		h := newTestHandler(t, testDeps{resolver: &stubResolver{err: errors.New("db closed")}})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/1", nil)
		req.SetPathValue("id", "1")
		w := httptest.NewRecorder()
		h.GetSwap(w, req)

		require.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func openChannelBody(t *testing.T, req OpenChannelRequest) *bytes.Reader {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func postOpenChannel(t *testing.T, h *Handler, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swaps", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.OpenChannel(w, req)
	return w
}

func validOpenRequest() OpenChannelRequest {
	return OpenChannelRequest{
		SrcAsset:    swap.AssetETH,
		DestAsset:   swap.AssetDOT,
		DestAddress: "14dest",
		Amount:      amountOf("1000000000000000000"),
	}
}

func amountOf(s string) events.Amount {
	i, _ := new(big.Int).SetString(s, 10)
	return events.NewAmount(i)
}

func TestOpenChannelValidation(t *testing.T) {
	h := newTestHandler(t, testDeps{})

	tests := []struct {
		name    string
		mutate  func(*OpenChannelRequest)
		message string
	}{
		{
			name:    "unknown source asset",
			mutate:  func(r *OpenChannelRequest) { r.SrcAsset = "DOGE" },
			message: "unknown source asset",
		},
		{
			name:    "unknown destination asset",
			mutate:  func(r *OpenChannelRequest) { r.DestAsset = "DOGE" },
			message: "unknown destination asset",
		},
		{
			name: "same asset",
			mutate: func(r *OpenChannelRequest) {
				r.DestAsset = r.SrcAsset
			},
			message: "must differ",
		},
		{
			name:    "missing destination address",
			mutate:  func(r *OpenChannelRequest) { r.DestAddress = "" },
			message: "destination address is required",
		},
		{
			name:    "zero amount",
			mutate:  func(r *OpenChannelRequest) { r.Amount = amountOf("0") },
			message: "positive",
		},
		{
			name:    "below minimum",
			mutate:  func(r *OpenChannelRequest) { r.Amount = amountOf("10") },
			message: "below minimum",
		},
		{
			name:    "above maximum",
			mutate:  func(r *OpenChannelRequest) { r.Amount = amountOf("10000000000000000000000") },
			message: "above maximum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validOpenRequest()
			tt.mutate(&req)

			w := postOpenChannel(t, h, openChannelBody(t, req))
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, decodeError(t, w).Message, tt.message)
		})
	}
}

func TestOpenChannel(t *testing.T) {
	t.Run("opens via broker", func(t *testing.T) {
		opener := &stubOpener{addr: &archive.DepositAddress{
			Chain:          swap.ChainEthereum,
			ChannelID:      42,
			DepositAddress: "0xabc",
			IssuedBlock:    500,
			ExpiryBlock:    10500,
		}}
		h := newTestHandler(t, testDeps{opener: opener})

		w := postOpenChannel(t, h, openChannelBody(t, validOpenRequest()))
		require.Equal(t, http.StatusOK, w.Code)

		var resp OpenChannelResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "500-Ethereum-42", resp.ID)
		require.Equal(t, "0xabc", resp.DepositAddress)
		require.Equal(t, 1, opener.calls)
	})

	t.Run("retry returns existing channel without broker call", func(t *testing.T) {
		database := setupTestDB(t)
		require.NoError(t, swap.UpsertSwapChannel(database, &swap.SwapChannel{
			IssuedBlock:    500,
			SrcChain:       swap.ChainEthereum,
			ChannelID:      42,
			SrcAsset:       swap.AssetETH,
			DestAsset:      swap.AssetDOT,
			DestChain:      swap.ChainPolkadot,
			DepositAddress: "0xexisting",
			DestAddress:    "14dest",
			ExpiryBlock:    10500,
			OpenedAt:       1700000000,
		}))

		opener := &stubOpener{err: errors.New("should not be called")}
		h := newTestHandler(t, testDeps{db: database, opener: opener})

		req := validOpenRequest()
		channelID := uint64(42)
		req.ChannelID = &channelID

		w := postOpenChannel(t, h, openChannelBody(t, req))
		require.Equal(t, http.StatusOK, w.Code)

		var resp OpenChannelResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "0xexisting", resp.DepositAddress)
		require.Equal(t, 0, opener.calls)
	})

	t.Run("broker failure", func(t *testing.T) {
		h := newTestHandler(t, testDeps{opener: &stubOpener{err: errors.New("unreachable")}})

		w := postOpenChannel(t, h, openChannelBody(t, validOpenRequest()))
		require.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newTestHandler(t, testDeps{})

		w := postOpenChannel(t, h, bytes.NewReader([]byte("{")))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetQuote(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newTestHandler(t, testDeps{quoter: &stubQuoter{result: &quote.Result{
			Source:       "provider-1",
			EgressAmount: big.NewInt(990),
		}}})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/quote?srcAsset=ETH&destAsset=DOT&amount=1000", nil)
		w := httptest.NewRecorder()
		h.GetQuote(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp QuoteResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, "990", resp.EgressAmount.String())
		require.Equal(t, "provider-1", resp.Source)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		h := newTestHandler(t, testDeps{})

		for _, query := range []string{
			"srcAsset=DOGE&destAsset=DOT&amount=1000",
			"srcAsset=ETH&destAsset=DOGE&amount=1000",
			"srcAsset=ETH&destAsset=ETH&amount=1000",
			"srcAsset=ETH&destAsset=DOT&amount=abc",
			"srcAsset=ETH&destAsset=DOT&amount=-5",
			"srcAsset=ETH&destAsset=DOT",
		} {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/quote?"+query, nil)
			w := httptest.NewRecorder()
			h.GetQuote(w, req)
			require.Equal(t, http.StatusBadRequest, w.Code, query)
		}
	})

	t.Run("no quotes available", func(t *testing.T) {
		h := newTestHandler(t, testDeps{quoter: &stubQuoter{err: quote.ErrNoQuotes}})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/quote?srcAsset=ETH&destAsset=DOT&amount=1000", nil)
		w := httptest.NewRecorder()
		h.GetQuote(w, req)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestGetQuoteSchema(t *testing.T) {
	h := newTestHandler(t, testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes/schema", nil)
	w := httptest.NewRecorder()
	h.GetQuoteSchema(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schema))
	require.Contains(t, w.Body.String(), "egressAmount")
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, int64(-1), resp.LastAppliedBlock)
}

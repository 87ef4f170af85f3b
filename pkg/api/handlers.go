package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/archive"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/events"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/ingest"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/quote"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/status"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/swap"
	"github.com/chainflip-io/chainflip-backend-sub000/pkg/config"
)

// StatusResolver derives the read-side status of a swap.
type StatusResolver interface {
	Resolve(ctx context.Context, id string) (*status.SwapStatus, error)
}

// ChannelOpener opens swap deposit channels on chain.
type ChannelOpener interface {
	RequestDepositAddress(
		ctx context.Context,
		srcAsset, destAsset swap.Asset,
		destAddress string,
		amount *big.Int,
		commissionBps uint32,
	) (*archive.DepositAddress, error)
}

// Quoter aggregates quotes across providers and the broker reference.
type Quoter interface {
	Quote(ctx context.Context, srcAsset, destAsset swap.Asset, amount *big.Int) (*quote.Result, error)
}

// ProviderHub accepts quote-provider websocket connections.
type ProviderHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Count() int
}

// Handler handles HTTP requests for the API.
type Handler struct {
	db       *sql.DB
	resolver StatusResolver
	opener   ChannelOpener
	quoter   Quoter
	hub      ProviderHub
	config   *config.APIConfig
	log      *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	db *sql.DB,
	resolver StatusResolver,
	opener ChannelOpener,
	quoter Quoter,
	hub ProviderHub,
	cfg *config.APIConfig,
	log *logger.Logger,
) *Handler {
	return &Handler{
		db:       db,
		resolver: resolver,
		opener:   opener,
		quoter:   quoter,
		hub:      hub,
		config:   cfg,
		log:      log,
	}
}

// GetSwap returns the status of a swap.
// @Summary Get swap status
// @Description Resolve a swap by native swap id, channel composite id (issuedBlock-chain-channelId) or transaction hash
// @Tags Swaps
// @Produce json
// @Param id path string true "Swap id, channel composite id or tx hash"
// @Success 200 {object} status.SwapStatus "Swap status"
// @Failure 404 {object} ErrorResponse "No matching swap or channel"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /swaps/{id} [get]
func (h *Handler) GetSwap(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "swap id is required")
		return
	}

	st, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		h.log.Errorw("failed to resolve swap status", "id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to resolve swap status")
		return
	}
	if st == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no swap or channel matches '%s'", id))
		return
	}

	respondJSON(w, http.StatusOK, st)
}

// OpenChannel opens a deposit channel for a new swap.
// @Summary Open a swap deposit channel
// @Description Request a deposit address for a swap. Retried requests carrying a channel id are idempotent: an already-open unexpired channel is returned as-is.
// @Tags Swaps
// @Accept json
// @Produce json
// @Param request body OpenChannelRequest true "Swap parameters"
// @Success 200 {object} OpenChannelResponse "Deposit channel"
// @Failure 400 {object} ErrorResponse "Invalid assets, address or amount"
// @Failure 502 {object} ErrorResponse "Broker unavailable"
// @Router /swaps [post]
func (h *Handler) OpenChannel(w http.ResponseWriter, r *http.Request) {
	var req OpenChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	srcChain, err := h.validateOpenChannel(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Retried request against a channel the ingester already recorded.
	if req.ChannelID != nil {
		existing, err := swap.OpenChannelByChannelID(h.db, srcChain, *req.ChannelID)
		if err != nil {
			h.log.Errorw("failed to look up existing channel", "channelId", *req.ChannelID, "err", err)
			respondError(w, http.StatusInternalServerError, "failed to look up existing channel")
			return
		}
		if existing != nil {
			respondJSON(w, http.StatusOK, channelResponse(existing))
			return
		}
	}

	addr, err := h.opener.RequestDepositAddress(
		r.Context(), req.SrcAsset, req.DestAsset, req.DestAddress, req.Amount.Int, req.BrokerCommissionBps)
	if err != nil {
		h.log.Errorw("broker open-channel request failed", "err", err)
		respondError(w, http.StatusBadGateway, "failed to open deposit channel")
		return
	}

	// The ingester may already have applied the channel-ready event.
	if existing, err := swap.OpenChannelByChannelID(h.db, addr.Chain, addr.ChannelID); err == nil && existing != nil {
		respondJSON(w, http.StatusOK, channelResponse(existing))
		return
	}

	respondJSON(w, http.StatusOK, OpenChannelResponse{
		ID:             fmt.Sprintf("%d-%s-%d", addr.IssuedBlock, addr.Chain, addr.ChannelID),
		SrcChain:       addr.Chain,
		ChannelID:      addr.ChannelID,
		DepositAddress: addr.DepositAddress,
		IssuedBlock:    addr.IssuedBlock,
		ExpiryBlock:    addr.ExpiryBlock,
	})
}

// validateOpenChannel checks assets, address and amount bounds. The returned
// chain is the source asset's chain.
func (h *Handler) validateOpenChannel(req *OpenChannelRequest) (swap.Chain, error) {
	if !req.SrcAsset.Valid() {
		return "", fmt.Errorf("unknown source asset '%s'", req.SrcAsset)
	}
	if !req.DestAsset.Valid() {
		return "", fmt.Errorf("unknown destination asset '%s'", req.DestAsset)
	}
	if req.SrcAsset == req.DestAsset {
		return "", fmt.Errorf("source and destination asset must differ")
	}
	if req.DestAddress == "" {
		return "", fmt.Errorf("destination address is required")
	}
	if req.Amount.Int == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("amount must be a positive integer")
	}

	srcChain, err := req.SrcAsset.Chain()
	if err != nil {
		return "", err
	}

	if bounds, ok := h.config.DepositBounds[string(req.SrcAsset)]; ok {
		if bounds.Min != "" {
			min, _ := new(big.Int).SetString(bounds.Min, 10)
			if min != nil && req.Amount.Cmp(min) < 0 {
				return "", fmt.Errorf("amount below minimum deposit of %s %s", bounds.Min, req.SrcAsset)
			}
		}
		if bounds.Max != "" {
			max, _ := new(big.Int).SetString(bounds.Max, 10)
			if max != nil && req.Amount.Cmp(max) > 0 {
				return "", fmt.Errorf("amount above maximum deposit of %s %s", bounds.Max, req.SrcAsset)
			}
		}
	}

	return srcChain, nil
}

func channelResponse(c *swap.SwapChannel) OpenChannelResponse {
	return OpenChannelResponse{
		ID:             c.CompositeID(),
		SrcChain:       c.SrcChain,
		ChannelID:      c.ChannelID,
		DepositAddress: c.DepositAddress,
		IssuedBlock:    c.IssuedBlock,
		ExpiryBlock:    c.ExpiryBlock,
	}
}

// GetQuote returns an aggregated quote.
// @Summary Get a swap quote
// @Description Fan a quote request out to connected providers and the broker reference, returning the best egress amount
// @Tags Quotes
// @Produce json
// @Param srcAsset query string true "Source asset"
// @Param destAsset query string true "Destination asset"
// @Param amount query string true "Deposit amount in fine units"
// @Success 200 {object} QuoteResponse "Best available quote"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 503 {object} ErrorResponse "No quotes available"
// @Router /quote [get]
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	srcAsset := swap.Asset(r.URL.Query().Get("srcAsset"))
	destAsset := swap.Asset(r.URL.Query().Get("destAsset"))

	if !srcAsset.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown source asset '%s'", srcAsset))
		return
	}
	if !destAsset.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown destination asset '%s'", destAsset))
		return
	}
	if srcAsset == destAsset {
		respondError(w, http.StatusBadRequest, "source and destination asset must differ")
		return
	}

	amount, ok := new(big.Int).SetString(r.URL.Query().Get("amount"), 10)
	if !ok || amount.Sign() <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be a positive decimal integer")
		return
	}

	res, err := h.quoter.Quote(r.Context(), srcAsset, destAsset, amount)
	if err != nil {
		h.log.Warnw("quote aggregation failed", "srcAsset", srcAsset, "destAsset", destAsset, "err", err)
		respondError(w, http.StatusServiceUnavailable, "no quotes available")
		return
	}

	respondJSON(w, http.StatusOK, QuoteResponse{
		SrcAsset:           srcAsset,
		DestAsset:          destAsset,
		Amount:             events.NewAmount(amount),
		IntermediateAmount: events.NewAmount(res.IntermediateAmount),
		EgressAmount:       events.NewAmount(res.EgressAmount),
		Source:             res.Source,
	})
}

// GetQuoteSchema returns the provider response schema.
// @Summary Get the quote provider response schema
// @Description JSON schema a quote provider's websocket responses must satisfy
// @Tags Quotes
// @Produce json
// @Success 200 {object} object "JSON schema"
// @Router /quotes/schema [get]
func (h *Handler) GetQuoteSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := quote.ResponseSchema()
	if err != nil {
		h.log.Errorw("failed to build provider schema", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to build schema")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(schema)
}

// ProviderWS upgrades a quote-provider connection.
func (h *Handler) ProviderWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// Health returns the health status of the service.
// @Summary Health check
// @Description Report the last applied block and the number of connected quote providers
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service health"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	height, err := ingest.ReadCursor(h.db)
	if err != nil {
		h.log.Errorw("health check failed to read cursor", "err", err)
		resp.Status = "degraded"
	} else {
		resp.LastAppliedBlock = height
	}

	if h.hub != nil {
		resp.ConnectedProviders = h.hub.Count()
	}

	respondJSON(w, http.StatusOK, resp)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/core/service"
)

const maxBodyBytes = 1 << 20

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	market *service.Marketplace
	store  Pinger
	log    zerolog.Logger
}

func NewHTTPHandler(market *service.Marketplace, store Pinger, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{market: market, store: store, log: log}
}

// Routes returns the API mux wrapped in the request middleware. Metrics are
// served from gatherer when it is not nil.
func (h *HTTPHandler) Routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/products", h.AddProduct)
	mux.HandleFunc("PATCH /api/products/{id}", h.UpdateProduct)
	mux.HandleFunc("GET /api/products/{id}", h.ProductDetails)

	mux.HandleFunc("POST /api/orders", h.Checkout)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)

	mux.HandleFunc("POST /api/campaigns", h.CreateCampaign)
	mux.HandleFunc("GET /api/campaigns/stats", h.CampaignStats)
	mux.HandleFunc("POST /api/campaigns/{id}/subscribe", h.Subscribe)
	mux.HandleFunc("GET /api/coupons", h.MyCoupons)

	mux.HandleFunc("POST /api/ratings", h.Rate)
	mux.HandleFunc("POST /api/roles", h.GrantRole)

	return withRequestContext(h.log, mux)
}

func (h *HTTPHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.market.AddProduct(r.Context(), credential(r), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id, Version: 1})
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productPatchRequest
	if !decode(w, r, &req) {
		return
	}
	version, err := h.market.UpdateProduct(r.Context(), credential(r), id, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id, Version: version})
}

func (h *HTTPHandler) ProductDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	details, err := h.market.ProductDetails(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDetails(details))
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decode(w, r, &req) {
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	order, err := h.market.Checkout(r.Context(), credential(r), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.market.GetOrder(r.Context(), credential(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(order))
}

func (h *HTTPHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.market.CreateCampaign(r.Context(), credential(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *HTTPHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	coupon, err := h.market.Subscribe(r.Context(), credential(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCoupon(coupon))
}

func (h *HTTPHandler) CampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.market.CampaignStats(r.Context(), credential(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]campaignStatsResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, campaignStatsResponse{
			CampaignID:         s.CampaignID,
			GeneratedCoupons:   s.GeneratedCoupons,
			UsedCoupons:        s.UsedCoupons,
			TotalDiscountValue: s.TotalDiscountValue,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) MyCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.market.MyCoupons(r.Context(), credential(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]couponResponse, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCoupon(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if !decode(w, r, &req) {
		return
	}
	rating, err := h.market.Rate(r.Context(), credential(r), domain.NewRating{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Score:     req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ratingResponse{
		OrderID:        rating.OrderID,
		ProductID:      rating.ProductID,
		ProductVersion: rating.ProductVersion,
		Rating:         rating.Score,
		Comment:        rating.Comment,
		CreatedAt:      rating.CreatedAt,
	})
}

func (h *HTTPHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.market.GrantRole(r.Context(), credential(r), req.UserID, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("store ping failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func credential(r *http.Request) string {
	return r.Header.Get("Authorization")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, domain.Validation("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, r, domain.Validation("request body is required"))
			return false
		}
		writeError(w, r, domain.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func statusOf(class domain.Class) int {
	switch class {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassUnauthorized:
		return http.StatusUnauthorized
	case domain.ClassForbidden:
		return http.StatusForbidden
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// writeError never exposes the cause of an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.Internal(err)
	}
	if de.Kind == domain.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	if de.Kind == domain.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="market"`)
	}
	writeJSON(w, statusOf(de.Kind.Class()), errorResponse{
		Success: false,
		Kind:    de.Kind,
		Message: de.Detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cartiva/pricing-api/internal/domain"
	"github.com/cartiva/pricing-api/internal/platform/httpx"
	"github.com/cartiva/pricing-api/internal/services"
)

// DiscountHandlers serves coupon lookups and pre-checkout validation. It
// exposes only redeemability; discount management lives in another system.
type DiscountHandlers struct {
	redemption *services.RedemptionService
}

// NewDiscountHandlers builds the discount handler set.
func NewDiscountHandlers(redemption *services.RedemptionService) (*DiscountHandlers, error) {
	if redemption == nil {
		return nil, errors.New("discount handlers require the redemption service")
	}
	return &DiscountHandlers{redemption: redemption}, nil
}

// Register mounts the discount routes on the given router group.
func (h *DiscountHandlers) Register(r chi.Router) {
	r.Get("/{code}", h.getByCode)
	r.Post("/{code}/validate", h.validate)
}

type discountResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// getByCode is the public hint: it confirms a code exists and is switched on,
// without evaluating conditions against any cart.
func (h *DiscountHandlers) getByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	d, err := h.redemption.FindByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrDiscountNotFound) {
			httpx.WriteError(r.Context(), w, httpx.NewError("discount_not_found", "no coupon with that code", http.StatusNotFound))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("discount_lookup_failed", "could not load the coupon", http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, discountResponse{
		ID:          d.ID,
		Code:        code,
		Name:        d.Name,
		Description: d.Description,
		Active:      d.Active && !d.IsDeleted(),
	})
}

type validateRequest struct {
	UserID            string   `json:"user_id"`
	RoleIDs           []string `json:"role_ids"`
	Currency          string   `json:"currency"`
	ValueWithoutTaxes *int64   `json:"value_without_taxes"`
	ValueWithTaxes    *int64   `json:"value_with_taxes"`
	ProductIDs        []string `json:"product_ids"`
	ProductSetIDs     []string `json:"product_set_ids"`
	LineCount         int      `json:"line_count"`
	CouponCount       int      `json:"coupon_count"`
}

type validateResponse struct {
	DiscountID string `json:"discount_id,omitempty"`
	Code       string `json:"code"`
	Redeemable bool   `json:"redeemable"`
	Reason     string `json:"reason,omitempty"`
}

// validate runs the matcher against a caller-supplied context. The verdict is
// advisory; the order commit re-checks everything transactionally.
func (h *DiscountHandlers) validate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "request body is not valid JSON", http.StatusBadRequest))
		return
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_currency", "currency must be a valid ISO 4217 code", http.StatusBadRequest))
		return
	}

	ec := domain.EvaluationContext{
		Identity:      domain.Identity{UserID: req.UserID, RoleIDs: req.RoleIDs},
		Currency:      currency,
		ProductIDs:    toSet(req.ProductIDs),
		ProductSetIDs: toSet(req.ProductSetIDs),
		LineCount:     req.LineCount,
		CouponCount:   req.CouponCount,
	}
	if req.ValueWithoutTaxes != nil {
		ec.ValueWithoutTaxes = map[string]domain.Money{
			currency: {Amount: *req.ValueWithoutTaxes, Currency: currency},
		}
	}
	if req.ValueWithTaxes != nil {
		ec.ValueWithTaxes = map[string]domain.Money{
			currency: {Amount: *req.ValueWithTaxes, Currency: currency},
		}
	}

	result, err := h.redemption.IsRedeemable(r.Context(), code, ec)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("validation_failed", "could not validate the coupon", http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		DiscountID: result.DiscountID,
		Code:       result.Code,
		Redeemable: result.Redeemable,
		Reason:     string(result.Reason),
	})
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

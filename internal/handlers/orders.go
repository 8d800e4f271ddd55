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

// OrderHandlers prices carts on behalf of the commerce backend. Evaluation is
// a dry run unless the request asks for a commit; committed evaluations write
// their usage counters and application records atomically.
type OrderHandlers struct {
	engine     *services.PricingEngine
	redemption *services.RedemptionService
}

// NewOrderHandlers builds the order pricing handler set.
func NewOrderHandlers(engine *services.PricingEngine, redemption *services.RedemptionService) (*OrderHandlers, error) {
	if engine == nil {
		return nil, errors.New("order handlers require the pricing engine")
	}
	if redemption == nil {
		return nil, errors.New("order handlers require the redemption service")
	}
	return &OrderHandlers{engine: engine, redemption: redemption}, nil
}

// Register mounts the order routes on the given router group.
func (h *OrderHandlers) Register(r chi.Router) {
	r.Post("/evaluate", h.evaluate)
	r.Get("/{orderId}/applications", h.applications)
	r.Delete("/{orderId}/applications", h.release)
}

type evaluateLineRequest struct {
	ID            string   `json:"id"`
	ProductID     string   `json:"product_id"`
	ProductSetIDs []string `json:"product_set_ids"`
	Quantity      int      `json:"quantity"`
	UnitPrice     int64    `json:"unit_price"`
}

type evaluateRequest struct {
	OrderID          string                `json:"order_id"`
	Currency         string                `json:"currency"`
	UserID           string                `json:"user_id"`
	RoleIDs          []string              `json:"role_ids"`
	Lines            []evaluateLineRequest `json:"lines"`
	ShippingMethodID string                `json:"shipping_method_id"`
	ShippingPrice    int64                 `json:"shipping_price"`
	TaxTotal         int64                 `json:"tax_total"`
	CouponCodes      []string              `json:"coupon_codes"`
	// Commit persists the outcome in the same call: counters increment and
	// application records are written, all or nothing.
	Commit bool `json:"commit"`
}

type applicationResponse struct {
	ID         string `json:"id"`
	DiscountID string `json:"discount_id"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
	Amount     int64  `json:"amount"`
}

type evaluateLineResponse struct {
	ID           string                `json:"id"`
	ProductID    string                `json:"product_id"`
	Original     int64                 `json:"original"`
	Final        int64                 `json:"final"`
	Applications []applicationResponse `json:"applications,omitempty"`
}

type evaluateResponse struct {
	OrderID           string                 `json:"order_id"`
	Currency          string                 `json:"currency"`
	Lines             []evaluateLineResponse `json:"lines"`
	ShippingOriginal  int64                  `json:"shipping_original"`
	ShippingFinal     int64                  `json:"shipping_final"`
	ShippingApps      []applicationResponse  `json:"shipping_applications,omitempty"`
	OrderApplications []applicationResponse  `json:"order_applications,omitempty"`
	Subtotal          int64                  `json:"subtotal"`
	Total             int64                  `json:"total"`
	TotalDiscount     int64                  `json:"total_discount"`
	AppliedDiscounts  []string               `json:"applied_discounts,omitempty"`
}

func (h *OrderHandlers) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_body", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	input := services.OrderEvaluationInput{
		OrderID:          req.OrderID,
		Currency:         req.Currency,
		Identity:         domain.Identity{UserID: req.UserID, RoleIDs: req.RoleIDs},
		ShippingMethodID: req.ShippingMethodID,
		ShippingPrice:    domain.Money{Amount: req.ShippingPrice},
		TaxTotal:         domain.Money{Amount: req.TaxTotal},
		CouponCodes:      req.CouponCodes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, services.OrderLineInput{
			ID:            line.ID,
			ProductID:     line.ProductID,
			ProductSetIDs: line.ProductSetIDs,
			Quantity:      line.Quantity,
			UnitPrice:     domain.Money{Amount: line.UnitPrice},
		})
	}

	eval, err := h.engine.EvaluateOrder(r.Context(), input)
	if err != nil {
		if cErr, ok := services.IsCouponNotApplicable(err); ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("coupon_not_applicable", "a requested coupon cannot be applied", http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"code": cErr.Code, "reason": string(cErr.Reason)}))
			return
		}
		if errors.Is(err, domain.ErrInvalidCurrency) || errors.Is(err, domain.ErrCurrencyMismatch) {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_currency", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("evaluation_failed", "could not price the order", http.StatusInternalServerError))
		return
	}

	if req.Commit {
		if err := h.redemption.CommitOrder(r.Context(), eval, input.Identity); err != nil {
			if errors.Is(err, services.ErrUsageCapExceeded) {
				httpx.WriteError(r.Context(), w, httpx.NewError("usage_cap_exceeded", "a discount usage cap was reached before commit", http.StatusConflict))
				return
			}
			httpx.WriteError(r.Context(), w, httpx.NewError("commit_failed", "could not record the applied discounts", http.StatusInternalServerError))
			return
		}
	}

	writeJSON(w, http.StatusOK, toEvaluateResponse(eval))
}

func (h *OrderHandlers) applications(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	records, err := h.redemption.OrderApplications(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("applications_unavailable", "could not load application records", http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":     orderID,
		"applications": toApplicationResponses(records),
	})
}

func (h *OrderHandlers) release(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if err := h.redemption.ReleaseOrder(r.Context(), orderID); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("release_failed", "could not delete application records", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toEvaluateResponse(eval services.OrderEvaluation) evaluateResponse {
	response := evaluateResponse{
		OrderID:          eval.OrderID,
		Currency:         eval.Currency,
		ShippingOriginal: eval.Shipping.Original.Amount,
		ShippingFinal:    eval.Shipping.Final.Amount,
		Subtotal:         eval.Subtotal.Amount,
		Total:            eval.Total.Amount,
		TotalDiscount:    eval.TotalDiscount.Amount,
		AppliedDiscounts: eval.AppliedDiscounts,
	}
	for _, line := range eval.Lines {
		response.Lines = append(response.Lines, evaluateLineResponse{
			ID:           line.LineID,
			ProductID:    line.ProductID,
			Original:     line.Original.Amount,
			Final:        line.Final.Amount,
			Applications: toApplicationResponses(line.Applications),
		})
	}
	response.ShippingApps = toApplicationResponses(eval.Shipping.Applications)
	response.OrderApplications = toApplicationResponses(eval.OrderApplications)
	return response
}

func toApplicationResponses(records []domain.ApplicationRecord) []applicationResponse {
	var out []applicationResponse
	for _, record := range records {
		out = append(out, applicationResponse{
			ID:         record.ID,
			DiscountID: record.DiscountID,
			TargetID:   record.TargetID,
			TargetType: string(record.TargetType),
			Amount:     record.AppliedAmount.Amount,
		})
	}
	return out
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cartiva/pricing-api/internal/platform/httpx"
	"github.com/cartiva/pricing-api/internal/repositories"
	"github.com/cartiva/pricing-api/internal/services"
)

// PriceBandHandlers serves the cached price envelopes per product.
type PriceBandHandlers struct {
	bands *services.PriceBandService
}

// NewPriceBandHandlers builds the price band handler set.
func NewPriceBandHandlers(bands *services.PriceBandService) (*PriceBandHandlers, error) {
	if bands == nil {
		return nil, errors.New("price band handlers require the price band service")
	}
	return &PriceBandHandlers{bands: bands}, nil
}

// Register mounts the price band routes on the given router group.
func (h *PriceBandHandlers) Register(r chi.Router) {
	r.Get("/{productId}/price-band", h.get)
}

type priceBandEntry struct {
	Currency   string `json:"currency"`
	Base       int64  `json:"base"`
	MinInitial int64  `json:"min_initial"`
	MaxInitial int64  `json:"max_initial"`
	Min        int64  `json:"min"`
	Max        int64  `json:"max"`
}

type priceBandResponse struct {
	ProductID string                    `json:"product_id"`
	Bands     map[string]priceBandEntry `json:"bands"`
}

func (h *PriceBandHandlers) get(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	bands, err := h.bands.Bands(r.Context(), productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			httpx.WriteError(r.Context(), w, httpx.NewError("price_band_not_found", "no price band for that product", http.StatusNotFound))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("price_band_lookup_failed", "could not load the price band", http.StatusInternalServerError))
		return
	}

	response := priceBandResponse{
		ProductID: productID,
		Bands:     make(map[string]priceBandEntry, len(bands)),
	}
	for code, band := range bands {
		response.Bands[code] = priceBandEntry{
			Currency:   code,
			Base:       band.Base,
			MinInitial: band.MinInitial,
			MaxInitial: band.MaxInitial,
			Min:        band.Min,
			Max:        band.Max,
		}
	}
	writeJSON(w, http.StatusOK, response)
}

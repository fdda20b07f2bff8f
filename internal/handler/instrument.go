package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payments/internal/domain"
	"payments/internal/service"
)

// InstrumentHandler handles HTTP requests for payment instruments.
type InstrumentHandler struct {
	instrumentService *service.InstrumentService
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(instrumentService *service.InstrumentService) *InstrumentHandler {
	return &InstrumentHandler{instrumentService: instrumentService}
}

// RegisterInstrumentRequest is the HTTP request body for registering an instrument.
type RegisterInstrumentRequest struct {
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"` // CARD, GIFT_CARD, WALLET
	Label      string `json:"label,omitempty"`
}

// InstrumentResponse is the HTTP response for instrument data.
type InstrumentResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"`
	Label      string `json:"label,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Register handles POST /v1/instruments
func (h *InstrumentHandler) Register(c *gin.Context) {
	var req RegisterInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.ProviderID == "" || req.Kind == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "provider_id and kind are required"})
		return
	}

	instrument, err := h.instrumentService.Register(c.Request.Context(), service.RegisterInstrumentRequest{
		ProviderID: req.ProviderID,
		Kind:       domain.InstrumentKind(req.Kind),
		Label:      req.Label,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toInstrumentResponse(instrument))
}

// GetInstrument handles GET /v1/instruments/:id
func (h *InstrumentHandler) GetInstrument(c *gin.Context) {
	instrument, err := h.instrumentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toInstrumentResponse(instrument))
}

// GetAll handles GET /v1/instruments
func (h *InstrumentHandler) GetAll(c *gin.Context) {
	instruments, err := h.instrumentService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]InstrumentResponse, 0, len(instruments))
	for _, i := range instruments {
		response = append(response, toInstrumentResponse(i))
	}

	respondJSON(c, http.StatusOK, gin.H{
		"instruments": response,
		"count":       len(response),
	})
}

func toInstrumentResponse(i *domain.Instrument) InstrumentResponse {
	return InstrumentResponse{
		ID:         i.ID,
		ProviderID: i.ProviderID,
		Kind:       string(i.Kind),
		Label:      i.Label,
		CreatedAt:  i.CreatedAt.Format(time.RFC3339),
	}
}

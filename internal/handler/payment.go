package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payments/internal/domain"
	"payments/internal/service"
)

// PaymentHandler handles HTTP requests for reservations and the payment ledger.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// SelectionRequest is one instrument of a reservation request.
type SelectionRequest struct {
	InstrumentID string `json:"instrument_id"`
	Limit        string `json:"limit,omitempty"` // Empty or "0" means unlimited
}

// ReserveRequest is the HTTP request body for reserving a payment.
type ReserveRequest struct {
	ReferenceID string             `json:"reference_id"`
	Amount      string             `json:"amount"`
	Currency    string             `json:"currency"`
	Instruments []SelectionRequest `json:"instruments"`
}

// SettleRequest is the HTTP request body for a charge or a credit.
type SettleRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// EventResponse is the HTTP representation of a ledger event.
type EventResponse struct {
	ID                 string       `json:"id"`
	ParentID           string       `json:"parent_id,omitempty"`
	Type               string       `json:"type"`
	Status             string       `json:"status"`
	Amount             domain.Money `json:"amount"`
	InstrumentID       string       `json:"instrument_id"`
	OriginalInstrument bool         `json:"original_instrument"`
	PlannedSteps       int          `json:"planned_steps,omitempty"`
	ReferenceID        string       `json:"reference_id"`
	ProviderRef        string       `json:"provider_ref,omitempty"`
	Message            string       `json:"message,omitempty"`
	CreatedAt          string       `json:"created_at"`
}

// CompensationResponse describes one void issued while unwinding a reservation.
type CompensationResponse struct {
	EventID      string       `json:"event_id,omitempty"`
	InstrumentID string       `json:"instrument_id"`
	Amount       domain.Money `json:"amount"`
	Attempts     int          `json:"attempts"`
	Succeeded    bool         `json:"succeeded"`
	Error        string       `json:"error,omitempty"`
}

// ReservationResponse is the HTTP response for a reservation.
type ReservationResponse struct {
	ReferenceID   string                 `json:"reference_id"`
	Total         domain.Money           `json:"total"`
	Success       bool                   `json:"success"`
	Events        []EventResponse        `json:"events"`
	Compensations []CompensationResponse `json:"compensations,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// SummaryResponse is the HTTP response for a ledger reconciliation.
type SummaryResponse struct {
	ReferenceID    string       `json:"reference_id"`
	Currency       string       `json:"currency"`
	AmountCharged  domain.Money `json:"amount_charged"`
	AmountRefunded domain.Money `json:"amount_refunded"`
	Net            domain.Money `json:"net"`
	EventCount     int          `json:"event_count"`
}

// Reserve handles POST /v1/reservations
func (h *PaymentHandler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.ReferenceID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "reference_id is required"})
		return
	}

	if len(req.Instruments) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "instruments are required"})
		return
	}

	total, err := domain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}

	selections := make([]domain.InstrumentSelection, 0, len(req.Instruments))
	for _, sel := range req.Instruments {
		limit := domain.Zero(total.Currency())
		if sel.Limit != "" {
			limit, err = domain.ParseMoney(sel.Limit, total.Currency())
			if err != nil {
				respondError(c, err)
				return
			}
		}
		selections = append(selections, domain.InstrumentSelection{InstrumentID: sel.InstrumentID, Limit: limit})
	}

	result, err := h.paymentService.Reserve(c.Request.Context(), service.ReserveRequest{
		ReferenceID: req.ReferenceID,
		Amount:      total,
		Selections:  selections,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusCreated
	if !result.Success {
		code = http.StatusPaymentRequired
	}
	respondJSON(c, code, toReservationResponse(result))
}

// GetLedger handles GET /v1/reservations/:referenceId/events
func (h *PaymentHandler) GetLedger(c *gin.Context) {
	events, err := h.paymentService.GetLedger(c.Request.Context(), c.Param("referenceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"events": toEventResponses(events),
		"count":  len(events),
	})
}

// GetSummary handles GET /v1/reservations/:referenceId/summary
func (h *PaymentHandler) GetSummary(c *gin.Context) {
	referenceID := c.Param("referenceId")

	summary, err := h.paymentService.GetSummary(c.Request.Context(), referenceID, c.Query("currency"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SummaryResponse{
		ReferenceID:    referenceID,
		Currency:       summary.Currency,
		AmountCharged:  summary.AmountCharged,
		AmountRefunded: summary.AmountRefunded,
		Net:            summary.Net,
		EventCount:     summary.EventCount,
	})
}

// StatementLineResponse is one hold of a statement.
type StatementLineResponse struct {
	EventID      string       `json:"event_id"`
	InstrumentID string       `json:"instrument_id"`
	Reserved     domain.Money `json:"reserved"`
	Charged      domain.Money `json:"charged"`
	Refunded     domain.Money `json:"refunded"`
	Chargeable   domain.Money `json:"chargeable"`
}

// StatementResponse is the HTTP response for a statement.
type StatementResponse struct {
	ReferenceID    string                  `json:"reference_id"`
	Placed         bool                    `json:"placed"`
	Attempts       int                     `json:"attempts"`
	Lines          []StatementLineResponse `json:"lines"`
	AmountCharged  domain.Money            `json:"amount_charged"`
	AmountRefunded domain.Money            `json:"amount_refunded"`
	Net            domain.Money            `json:"net"`
	GeneratedAt    string                  `json:"generated_at"`
}

// GetStatement handles GET /v1/reservations/:referenceId/statement
// ?format=text returns the printable form.
func (h *PaymentHandler) GetStatement(c *gin.Context) {
	statement, err := h.paymentService.GetStatement(c.Request.Context(), c.Param("referenceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, service.FormatStatement(statement))
		return
	}

	resp := StatementResponse{
		ReferenceID:    statement.ReferenceID,
		Placed:         statement.Placed,
		Attempts:       statement.Attempts,
		Lines:          make([]StatementLineResponse, 0, len(statement.Lines)),
		AmountCharged:  statement.Summary.AmountCharged,
		AmountRefunded: statement.Summary.AmountRefunded,
		Net:            statement.Summary.Net,
		GeneratedAt:    statement.GeneratedAt.Format(time.RFC3339),
	}
	for _, line := range statement.Lines {
		resp.Lines = append(resp.Lines, StatementLineResponse{
			EventID:      line.EventID,
			InstrumentID: line.InstrumentID,
			Reserved:     line.Reserved,
			Charged:      line.Charged,
			Refunded:     line.Refunded,
			Chargeable:   line.Chargeable,
		})
	}

	respondJSON(c, http.StatusOK, resp)
}

// GetEvent handles GET /v1/events/:id
func (h *PaymentHandler) GetEvent(c *gin.Context) {
	event, err := h.paymentService.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toEventResponse(event))
}

// Charge handles POST /v1/events/:id/charge
func (h *PaymentHandler) Charge(c *gin.Context) {
	h.settle(c, h.paymentService.Charge)
}

// Credit handles POST /v1/events/:id/credit
func (h *PaymentHandler) Credit(c *gin.Context) {
	h.settle(c, h.paymentService.Credit)
}

type settleFunc func(ctx context.Context, req service.SettleRequest) (*domain.PaymentEvent, error)

func (h *PaymentHandler) settle(c *gin.Context, fn settleFunc) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	amount, err := domain.ParseMoney(req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}

	event, err := fn(c.Request.Context(), service.SettleRequest{
		ParentEventID: c.Param("id"),
		Amount:        amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusCreated
	if !event.Approved() {
		code = http.StatusPaymentRequired
	}
	respondJSON(c, code, toEventResponse(event))
}

func toReservationResponse(result *service.ReservationResult) ReservationResponse {
	resp := ReservationResponse{
		ReferenceID: result.ReferenceID,
		Total:       result.Total,
		Success:     result.Success,
		Events:      toEventResponses(result.Events),
	}

	for _, comp := range result.Compensations {
		cr := CompensationResponse{
			EventID:      comp.EventID,
			InstrumentID: comp.InstrumentID,
			Amount:       comp.Amount,
			Attempts:     comp.Attempts,
			Succeeded:    comp.Succeeded(),
		}
		if comp.Err != nil {
			cr.Error = comp.Err.Error()
		}
		resp.Compensations = append(resp.Compensations, cr)
	}

	for _, w := range result.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}

	return resp
}

func toEventResponses(events []*domain.PaymentEvent) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}

func toEventResponse(e *domain.PaymentEvent) EventResponse {
	return EventResponse{
		ID:                 e.ID,
		ParentID:           e.ParentID,
		Type:               string(e.Type),
		Status:             string(e.Status),
		Amount:             e.Amount,
		InstrumentID:       e.InstrumentID,
		OriginalInstrument: e.OriginalInstrument,
		PlannedSteps:       e.PlannedSteps,
		ReferenceID:        e.ReferenceID,
		ProviderRef:        e.ProviderRef,
		Message:            e.Message,
		CreatedAt:          e.CreatedAt.Format(time.RFC3339Nano),
	}
}

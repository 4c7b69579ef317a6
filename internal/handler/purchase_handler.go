package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type PurchaseHandler struct {
	orchestrator *service.PurchaseOrchestrator
	signers      ledger.SignerFactory
}

func NewPurchaseHandler(orchestrator *service.PurchaseOrchestrator, signers ledger.SignerFactory) *PurchaseHandler {
	return &PurchaseHandler{orchestrator: orchestrator, signers: signers}
}

type PurchaseResponse struct {
	ID              uint64  `json:"id"`
	ProductID       uint64  `json:"productId"`
	BuyerPrincipal  string  `json:"buyerPrincipal"`
	SellerPrincipal string  `json:"sellerPrincipal"`
	Status          string  `json:"status"`
	EscrowSequence  *uint32 `json:"escrowSequence,omitempty"`
	TxHash          *string `json:"txHash,omitempty"`
	CompletedAt     *string `json:"completedAt,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

type AccessGrantResponse struct {
	Locator   string `json:"locator"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type FlowResponse struct {
	State          string               `json:"state"`
	Status         string               `json:"status"`
	FailReason     string               `json:"failReason,omitempty"`
	EscrowTxHash   string               `json:"escrowTxHash,omitempty"`
	EscrowSequence uint32               `json:"escrowSequence,omitempty"`
	CredentialID   string               `json:"credentialId,omitempty"`
	AcceptTxHash   string               `json:"acceptTxHash,omitempty"`
	FinishTxHash   string               `json:"finishTxHash,omitempty"`
	Access         *AccessGrantResponse `json:"access,omitempty"`
	Purchase       *PurchaseResponse    `json:"purchase,omitempty"`
}

func toPurchaseResponse(p *model.Purchase) *PurchaseResponse {
	if p == nil {
		return nil
	}
	var completedAt *string
	if p.CompletedAt != nil {
		val := p.CompletedAt.Format(time.RFC3339)
		completedAt = &val
	}
	return &PurchaseResponse{
		ID:              p.ID,
		ProductID:       p.ProductID,
		BuyerPrincipal:  p.BuyerPrincipal,
		SellerPrincipal: p.SellerPrincipal,
		Status:          string(p.Status),
		EscrowSequence:  p.EscrowSequence,
		TxHash:          p.TxHash,
		CompletedAt:     completedAt,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

func toAccessResponse(g *service.AccessGrant) *AccessGrantResponse {
	if g == nil {
		return nil
	}
	return &AccessGrantResponse{
		Locator:   g.Locator,
		Token:     g.Token,
		ExpiresAt: g.ExpiresAt.Format(time.RFC3339),
	}
}

func toFlowResponse(r *service.PurchaseResult) FlowResponse {
	return FlowResponse{
		State:          string(r.State),
		Status:         string(r.Status),
		FailReason:     string(r.FailReason),
		EscrowTxHash:   r.Artifacts.EscrowTxHash,
		EscrowSequence: r.Artifacts.EscrowSequence,
		CredentialID:   r.Artifacts.CredentialID,
		AcceptTxHash:   r.Artifacts.AcceptTxHash,
		FinishTxHash:   r.Artifacts.FinishTxHash,
		Access:         toAccessResponse(r.Artifacts.Access),
		Purchase:       toPurchaseResponse(r.Purchase),
	}
}

// Purchase runs the settlement flow for the authenticated buyer. Completed
// flows answer 201; flows parked on the deferred finish path answer 202 and
// are reconciled on the next query.
func (h *PurchaseHandler) Purchase(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}

	signer := h.signers.For(principal)
	result, err := h.orchestrator.ExecutePurchase(c.Request().Context(), productID, principal, signer)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "product not found"))
		case service.ErrPurchaseInFlight:
			return c.JSON(http.StatusConflict, NewErrorResponse("in_flight", "purchase flow already running"))
		case service.ErrAlreadyPurchased:
			return c.JSON(http.StatusConflict, NewErrorResponse("already_purchased", "product already purchased"))
		case service.ErrOwnProduct:
			return badRequest(c, err.Error())
		case service.ErrPrincipalRequired:
			return unauthorized(c)
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "purchase flow error"))
		}
	}

	switch result.Status {
	case service.StatusCompleted:
		return c.JSON(http.StatusCreated, toFlowResponse(result))
	case service.StatusPending:
		return c.JSON(http.StatusAccepted, toFlowResponse(result))
	default:
		return c.JSON(http.StatusUnprocessableEntity, toFlowResponse(result))
	}
}

func (h *PurchaseHandler) GetByProduct(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	p, err := h.orchestrator.GetByProduct(c.Request().Context(), productID, principal)
	if err != nil {
		if err == service.ErrNotFound {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "purchase not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch purchase"))
	}
	return c.JSON(http.StatusOK, toPurchaseResponse(p))
}

// RequestAccess re-issues a download grant for an already-settled buyer.
func (h *PurchaseHandler) RequestAccess(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	grant, err := h.orchestrator.RequestAccess(c.Request().Context(), productID, principal)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "product not found"))
		case service.ErrForbidden:
			return c.JSON(http.StatusForbidden, NewErrorResponse("forbidden", "no valid purchase for this product"))
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to grant access"))
		}
	}
	return c.JSON(http.StatusOK, toAccessResponse(grant))
}

func (h *PurchaseHandler) ListMine(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	list, err := h.orchestrator.ListByBuyer(c.Request().Context(), principal)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch purchases"))
	}
	resp := make([]*PurchaseResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toPurchaseResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

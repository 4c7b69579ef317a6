package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type RatingHandler struct {
	svc service.RatingService
}

func NewRatingHandler(svc service.RatingService) *RatingHandler {
	return &RatingHandler{svc: svc}
}

type RatingResponse struct {
	ID             uint64 `json:"id"`
	ProductID      uint64 `json:"productId"`
	BuyerPrincipal string `json:"buyerPrincipal"`
	Score          int    `json:"score"`
	TokenID        string `json:"tokenId"`
	CreatedAt      string `json:"createdAt"`
}

type CreateRatingRequest struct {
	Score int `json:"score"`
}

func toRatingResponse(r *model.Rating) RatingResponse {
	return RatingResponse{
		ID:             r.ID,
		ProductID:      r.ProductID,
		BuyerPrincipal: r.BuyerPrincipal,
		Score:          r.Score,
		TokenID:        r.TokenID,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
}

func (h *RatingHandler) Create(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	var req CreateRatingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	rating, err := h.svc.IssueRating(c.Request().Context(), productID, principal, req.Score)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "product not found"))
		case service.ErrAlreadyRated:
			return c.JSON(http.StatusConflict, NewErrorResponse("already_rated", "product already rated by this buyer"))
		case service.ErrNotPurchased:
			return c.JSON(http.StatusForbidden, NewErrorResponse("not_purchased", "rating requires a completed purchase"))
		case service.ErrInvalidScore:
			return badRequest(c, err.Error())
		default:
			return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to issue rating"))
		}
	}
	return c.JSON(http.StatusCreated, toRatingResponse(rating))
}

func (h *RatingHandler) ListByProduct(c echo.Context) error {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	list, err := h.svc.ListByProduct(c.Request().Context(), productID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch ratings"))
	}
	resp := make([]RatingResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toRatingResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

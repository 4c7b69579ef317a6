package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/service"
	"github.com/labstack/echo/v4"
)

type ProductHandler struct {
	svc service.ProductService
}

func NewProductHandler(svc service.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

type ProductResponse struct {
	ID              uint64           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	ContentLocator  string           `json:"contentLocator"`
	PriceDrops      int64            `json:"priceDrops"`
	SellerPrincipal string           `json:"sellerPrincipal"`
	AssetID         *string          `json:"assetId,omitempty"`
	CredentialID    *string          `json:"credentialId,omitempty"`
	Ratings         []RatingResponse `json:"ratings,omitempty"`
	CreatedAt       string           `json:"createdAt"`
	UpdatedAt       string           `json:"updatedAt"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int64             `json:"total"`
}

type CreateProductRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	ContentLocator string `json:"contentLocator"`
	PriceDrops     int64  `json:"priceDrops"`
}

func toProductResponse(p *model.Product) ProductResponse {
	ratings := make([]RatingResponse, 0, len(p.Ratings))
	for i := range p.Ratings {
		ratings = append(ratings, toRatingResponse(&p.Ratings[i]))
	}
	return ProductResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		ContentLocator:  p.ContentLocator,
		PriceDrops:      p.PriceDrops,
		SellerPrincipal: p.SellerPrincipal,
		AssetID:         p.AssetID,
		CredentialID:    p.CredentialID,
		Ratings:         ratings,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *ProductHandler) Create(c echo.Context) error {
	principal, _ := c.Get("principal").(string)
	if principal == "" {
		return unauthorized(c)
	}
	var req CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	product, err := h.svc.Create(c.Request().Context(), req.Name, req.Description, req.ContentLocator, req.PriceDrops, principal)
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusCreated, toProductResponse(product))
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id")
	}
	product, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if err == service.ErrNotFound {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "product not found"))
		}
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch product"))
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

func (h *ProductHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	products, total, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "failed to fetch products"))
	}
	resp := ProductListResponse{
		Products: make([]ProductResponse, 0, len(products)),
		Total:    total,
	}
	for i := range products {
		resp.Products = append(resp.Products, toProductResponse(&products[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

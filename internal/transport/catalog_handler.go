package transport

import (
	"net/http"

	"jam3a/internal/authz"
	"jam3a/internal/middleware"
	"jam3a/internal/repository"
	"jam3a/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateCategoryRequest represents the category creation payload
type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required"`
	NameAr      string `json:"name_ar"`
	Description string `json:"description"`
}

// ProductRequest represents the product create and update payload
type ProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	CategoryID  string  `json:"category_id" validate:"required,uuid"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Active      *bool   `json:"active"`
}

func (req ProductRequest) input() service.ProductInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  uuid.MustParse(req.CategoryID),
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		Active:      active,
	}
}

// CatalogHandler handles HTTP requests for categories and products
type CatalogHandler struct {
	catalog service.CatalogService
	policy  *authz.Policy
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, policy *authz.Policy, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		policy:  policy,
		logger:  logger,
	}
}

// RegisterRoutes registers category and product routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	productManagers := []authz.Capability{authz.CapCatalogManage, authz.CapProductManageOwn}

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Get("/{id}", h.GetCategory)
		r.With(authMiddleware, middleware.RequireCapability(h.policy, authz.CapCatalogManage, h.logger)).
			Post("/", h.CreateCategory)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/search", h.SearchProducts)
		r.Get("/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, middleware.RequireAnyCapability(h.policy, productManagers, h.logger))
			r.Post("/", h.CreateProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})
}

// ListCategories lists categories; ?all=true includes inactive ones
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	all, err := queryBoolPtr(r, "all")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	categories, err := h.catalog.ListCategories(r.Context(), all == nil || !*all)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	category, err := h.catalog.GetCategory(r.Context(), id)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, category)
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateCategoryRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), actor, req.Name, req.NameAr, req.Description)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusCreated, category)
}

// ListProducts lists products with category filter, sorting and pagination
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	categoryID, err := queryUUIDPtr(r, "category_id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	sortOrder, err := querySortOrder(r)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	page, pageSize, err := pagination(r)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	products, total, err := h.catalog.ListProducts(r.Context(), service.ProductQuery{
		CategoryID: categoryID,
		Page:       page,
		PageSize:   pageSize,
		SortBy:     r.URL.Query().Get("sort_by"),
		SortOrder:  sortOrder,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	page, pageSize = pageOf(page, pageSize, repository.DefaultProductPageSize, repository.MaxProductPageSize)
	middleware.RespondWithPage(w, products, total, page, pageSize)
}

// SearchProducts matches ?q= against product names and descriptions
func (h *CatalogHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	products, total, err := h.catalog.SearchProducts(r.Context(), r.URL.Query().Get("q"), page, pageSize)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	page, pageSize = pageOf(page, pageSize, repository.DefaultProductPageSize, repository.MaxProductPageSize)
	middleware.RespondWithPage(w, products, total, page, pageSize)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, product)
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), actor, req.input())
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusCreated, product)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), actor, id, req.input())
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, product)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), actor, id); err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"jam3a/internal/authz"
	"jam3a/internal/domain"
	"jam3a/internal/middleware"
	"jam3a/internal/repository"
	"jam3a/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateDealRequest represents the deal creation payload
type CreateDealRequest struct {
	Title           string    `json:"title" validate:"required"`
	TitleAr         string    `json:"title_ar"`
	Description     string    `json:"description"`
	DescriptionAr   string    `json:"description_ar"`
	CategoryID      string    `json:"category_id" validate:"required,uuid"`
	RegularPrice    float64   `json:"regular_price" validate:"required,gt=0"`
	Jam3aPrice      float64   `json:"jam3a_price" validate:"required,gt=0,ltfield=RegularPrice"`
	MinParticipants int       `json:"min_participants" validate:"omitempty,gte=1"`
	MaxParticipants int       `json:"max_participants" validate:"required,gte=1"`
	ExpiryDate      time.Time `json:"expiry_date" validate:"required"`
	Status          string    `json:"status" validate:"omitempty,oneof=pending active"`
	Featured        bool      `json:"featured"`
	ImageURL        string    `json:"image_url" validate:"omitempty,url"`
}

// UpdateDealRequest represents a partial deal update; absent fields are kept
type UpdateDealRequest struct {
	Title           *string    `json:"title" validate:"omitempty,min=1"`
	TitleAr         *string    `json:"title_ar"`
	Description     *string    `json:"description"`
	DescriptionAr   *string    `json:"description_ar"`
	CategoryID      *string    `json:"category_id" validate:"omitempty,uuid"`
	RegularPrice    *float64   `json:"regular_price" validate:"omitempty,gt=0"`
	Jam3aPrice      *float64   `json:"jam3a_price" validate:"omitempty,gt=0"`
	MinParticipants *int       `json:"min_participants" validate:"omitempty,gte=1"`
	MaxParticipants *int       `json:"max_participants" validate:"omitempty,gte=1"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	Status          *string    `json:"status" validate:"omitempty,oneof=active cancelled"`
	Featured        *bool      `json:"featured"`
	ImageURL        *string    `json:"image_url" validate:"omitempty,url"`
}

// JoinDealRequest is the optional join payload
type JoinDealRequest struct {
	ProductID string `json:"product_id" validate:"omitempty,uuid"`
}

// DealHandler handles HTTP requests for deals
type DealHandler struct {
	deals  service.DealService
	policy *authz.Policy
	logger *zap.Logger
}

// NewDealHandler creates a new DealHandler
func NewDealHandler(deals service.DealService, policy *authz.Policy, logger *zap.Logger) *DealHandler {
	return &DealHandler{
		deals:  deals,
		policy: policy,
		logger: logger,
	}
}

// RegisterRoutes registers all deal routes. joinLimiter may be nil.
func (h *DealHandler) RegisterRoutes(r chi.Router, authMiddleware, joinLimiter func(http.Handler) http.Handler) {
	manage := []authz.Capability{authz.CapDealManageAny, authz.CapDealManageOwn}

	r.Route("/api/deals", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/featured", h.Featured)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(middleware.RequireCapability(h.policy, authz.CapDealCreate, h.logger)).Post("/", h.Create)
			r.With(middleware.RequireAnyCapability(h.policy, manage, h.logger)).Put("/{id}", h.Update)
			r.With(middleware.RequireAnyCapability(h.policy, manage, h.logger)).Delete("/{id}", h.Delete)
			r.With(middleware.RequireCapability(h.policy, authz.CapDealViewParticipants, h.logger)).Get("/{id}/participants", h.Participants)

			join := r.With(middleware.RequireCapability(h.policy, authz.CapDealJoin, h.logger))
			if joinLimiter != nil {
				join = join.With(joinLimiter)
			}
			join.Post("/{id}/join", h.Join)
		})
	})
}

// List handles deal listing with filters, sorting and pagination
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseDealQuery(r)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	deals, total, err := h.deals.List(r.Context(), query)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	page, pageSize := pageOf(query.Page, query.PageSize, repository.DefaultDealPageSize, repository.MaxDealPageSize)
	middleware.RespondWithPage(w, deals, total, page, pageSize)
}

func parseDealQuery(r *http.Request) (service.DealQuery, error) {
	var (
		q   service.DealQuery
		err error
	)
	values := r.URL.Query()

	if q.CategoryID, err = queryUUIDPtr(r, "category_id"); err != nil {
		return q, err
	}
	switch status := strings.ToLower(values.Get("status")); status {
	case "":
	case "all":
		q.AnyStatus = true
	default:
		s := domain.DealStatus(status)
		if !s.Valid() {
			return q, domain.NewValidationError("invalid status %q", status)
		}
		q.Status = &s
	}
	if q.Featured, err = queryBoolPtr(r, "featured"); err != nil {
		return q, err
	}
	if q.MinParticipants, err = queryIntPtr(r, "min_participants_count"); err != nil {
		return q, err
	}
	if q.MaxParticipants, err = queryIntPtr(r, "max_participants_count"); err != nil {
		return q, err
	}
	q.Search = strings.TrimSpace(values.Get("search"))

	switch sortBy := values.Get("sort_by"); sortBy {
	case "", "created_at", "discount", "participants":
		q.SortBy = sortBy
	default:
		return q, domain.NewValidationError("sort_by must be one of created_at, discount, participants")
	}
	if q.SortOrder, err = querySortOrder(r); err != nil {
		return q, err
	}
	if q.Page, q.PageSize, err = pagination(r); err != nil {
		return q, err
	}
	return q, nil
}

// Featured handles the featured deals carousel
func (h *DealHandler) Featured(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultFeaturedLimit)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	deals, err := h.deals.Featured(r.Context(), limit)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, deals)
}

// Get handles fetching a single deal
func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	deal, err := h.deals.Get(r.Context(), id)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, deal)
}

// Create handles deal creation
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateDealRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Deal validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	minParticipants := req.MinParticipants
	if minParticipants == 0 {
		minParticipants = 1
	}

	deal, err := h.deals.Create(r.Context(), actor, service.CreateDealInput{
		Title:           req.Title,
		TitleAr:         req.TitleAr,
		Description:     req.Description,
		DescriptionAr:   req.DescriptionAr,
		CategoryID:      uuid.MustParse(req.CategoryID),
		RegularPrice:    req.RegularPrice,
		Jam3aPrice:      req.Jam3aPrice,
		MinParticipants: minParticipants,
		MaxParticipants: req.MaxParticipants,
		ExpiryDate:      req.ExpiryDate,
		Status:          domain.DealStatus(req.Status),
		Featured:        req.Featured,
		ImageURL:        req.ImageURL,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusCreated, deal)
}

// Update handles partial deal updates
func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	var req UpdateDealRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Deal update validation failed", zap.Error(err))
		middleware.RespondWithDecodeError(w, err)
		return
	}

	deal, err := h.deals.Update(r.Context(), actor, id, req.patch())
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, deal)
}

func (req UpdateDealRequest) patch() domain.DealPatch {
	p := domain.DealPatch{
		Title:           req.Title,
		TitleAr:         req.TitleAr,
		Description:     req.Description,
		DescriptionAr:   req.DescriptionAr,
		RegularPrice:    req.RegularPrice,
		Jam3aPrice:      req.Jam3aPrice,
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		ExpiryDate:      req.ExpiryDate,
		Featured:        req.Featured,
		ImageURL:        req.ImageURL,
	}
	if req.CategoryID != nil {
		id := uuid.MustParse(*req.CategoryID)
		p.CategoryID = &id
	}
	if req.Status != nil {
		s := domain.DealStatus(*req.Status)
		p.Status = &s
	}
	return p
}

// Delete removes a deal, or cancels it when it already has participants
func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	cancelled, err := h.deals.Delete(r.Context(), actor, id)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	if cancelled != nil {
		middleware.RespondWithData(w, http.StatusOK, cancelled)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, map[string]string{"message": "deal deleted"})
}

// Participants lists the members of a deal
func (h *DealHandler) Participants(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	participants, err := h.deals.Participants(r.Context(), actor, id)
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, participants)
}

// Join adds the authenticated user to a deal, optionally with a product
func (h *DealHandler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}

	// the body is optional
	var req JoinDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.RespondWithDecodeError(w, middleware.ErrMalformedBody)
		return
	}
	if err := middleware.ValidateRequest(&req); err != nil {
		middleware.RespondWithDecodeError(w, err)
		return
	}

	var productID *uuid.UUID
	if req.ProductID != "" {
		pid := uuid.MustParse(req.ProductID)
		productID = &pid
	}

	deal, err := h.deals.Join(r.Context(), actor, id, productID)
	if err != nil {
		h.logger.Debug("Join rejected",
			zap.String("deal_id", id.String()),
			zap.String("user_id", actor.ID.String()),
			zap.String("code", string(domain.CodeOf(err))),
		)
		middleware.RespondWithDomainError(w, r, err, h.logger)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, deal)
}

package service

import (
	"context"
	"strings"
	"time"

	"jam3a/internal/authz"
	"jam3a/internal/domain"
	"jam3a/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductInput carries the editable product fields
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	CategoryID  uuid.UUID
	ImageURL    string
	Stock       int
	Active      bool
}

// ProductQuery is a product listing request
type ProductQuery struct {
	CategoryID *uuid.UUID
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  repository.SortOrder
}

// CatalogService defines the interface for category and product logic
type CatalogService interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]*domain.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	CreateCategory(ctx context.Context, actor authz.Actor, name, nameAr, description string) (*domain.Category, error)

	ListProducts(ctx context.Context, query ProductQuery) ([]*domain.Product, int, error)
	SearchProducts(ctx context.Context, text string, page, pageSize int) ([]*domain.Product, int, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CreateProduct(ctx context.Context, actor authz.Actor, input ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, actor authz.Actor, id uuid.UUID, input ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, actor authz.Actor, id uuid.UUID) error
}

type catalogService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	policy     *authz.Policy
	logger     *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	policy *authz.Policy,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categories: categories,
		products:   products,
		policy:     policy,
		logger:     logger,
	}
}

func (s *catalogService) ListCategories(ctx context.Context, activeOnly bool) ([]*domain.Category, error) {
	return s.categories.List(ctx, activeOnly)
}

func (s *catalogService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.categories.FindByID(ctx, id)
}

// CreateCategory adds an active category; admins only
func (s *catalogService) CreateCategory(ctx context.Context, actor authz.Actor, name, nameAr, description string) (*domain.Category, error) {
	if err := s.policy.Authorize(actor, authz.CapCatalogManage); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name is required")
	}

	category := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		NameAr:      nameAr,
		Description: description,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}

	s.logger.Info("Category created", zap.String("category_id", category.ID.String()), zap.String("name", name))
	return category, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductQuery) ([]*domain.Product, int, error) {
	return s.products.List(ctx, query.CategoryID, query.Page, query.PageSize, query.SortBy, query.SortOrder)
}

func (s *catalogService) SearchProducts(ctx context.Context, text string, page, pageSize int) ([]*domain.Product, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, domain.NewValidationError("search query is required")
	}
	return s.products.Search(ctx, text, page, pageSize)
}

func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// CreateProduct stores a product owned by the actor
func (s *catalogService) CreateProduct(ctx context.Context, actor authz.Actor, input ProductInput) (*domain.Product, error) {
	if !s.policy.Can(actor.Role, authz.CapCatalogManage) && !s.policy.Can(actor.Role, authz.CapProductManageOwn) {
		return nil, domain.ErrForbidden
	}

	now := time.Now()
	product := &domain.Product{
		ID:        uuid.New(),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	input.applyTo(product)
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", product.ID.String()), zap.String("created_by", actor.ID.String()))
	return product, nil
}

// UpdateProduct replaces the editable fields of a product the actor manages
func (s *catalogService) UpdateProduct(ctx context.Context, actor authz.Actor, id uuid.UUID, input ProductInput) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanManageProduct(actor, product) {
		return nil, domain.ErrForbidden
	}

	input.applyTo(product)
	product.UpdatedAt = time.Now()
	if err := product.Validate(); err != nil {
		return nil, err
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes a product the actor manages
func (s *catalogService) DeleteProduct(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanManageProduct(actor, product) {
		return domain.ErrForbidden
	}

	return s.products.Delete(ctx, id)
}

func (in ProductInput) applyTo(p *domain.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.CategoryID = in.CategoryID
	p.ImageURL = in.ImageURL
	p.Stock = in.Stock
	p.Active = in.Active
}

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"jam3a/internal/domain"
	"jam3a/internal/notify"
	"jam3a/internal/repository"

	"github.com/google/uuid"
)

// Mock repositories for testing
type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, exists := m.users[email]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

type mockCategoryRepository struct {
	mu         sync.Mutex
	categories map[uuid.UUID]*domain.Category
}

func newMockCategoryRepository(categories ...*domain.Category) *mockCategoryRepository {
	m := &mockCategoryRepository{categories: make(map[uuid.UUID]*domain.Category)}
	for _, c := range categories {
		m.categories[c.ID] = c
	}
	return m
}

func (m *mockCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == category.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	m.categories[category.ID] = category
	return nil
}

func (m *mockCategoryRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Category{}
	for _, c := range m.categories {
		if c.Active || !activeOnly {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return c, nil
}

type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository(products ...*domain.Product) *mockProductRepository {
	m := &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	cp := *product
	m.products[product.ID] = &cp
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range m.products {
		if categoryID == nil || p.CategoryID == *categoryID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockProductRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return m.List(ctx, nil, page, pageSize, "", repository.SortOrderAsc)
}

// mockDealRepository serializes every operation behind one mutex, the
// in-memory counterpart of the row lock the SQL repository takes
type mockDealRepository struct {
	mu           sync.Mutex
	deals        map[uuid.UUID]*domain.Deal
	participants map[uuid.UUID][]*domain.Participant
	products     *mockProductRepository
	lastFilter   repository.DealFilter
	expireCalls  int
}

func newMockDealRepository(products *mockProductRepository, deals ...*domain.Deal) *mockDealRepository {
	m := &mockDealRepository{
		deals:        make(map[uuid.UUID]*domain.Deal),
		participants: make(map[uuid.UUID][]*domain.Participant),
		products:     products,
	}
	for _, d := range deals {
		m.deals[d.ID] = d
	}
	return m
}

func (m *mockDealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deal.Code = domain.FormatDealCode(int64(len(m.deals) + 1))
	cp := *deal
	m.deals[deal.ID] = &cp
	return nil
}

func (m *mockDealRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	return copyDeal(d), nil
}

func (m *mockDealRepository) List(ctx context.Context, filter repository.DealFilter) ([]*domain.Deal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	out := []*domain.Deal{}
	for _, d := range m.deals {
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.Featured != nil && d.Featured != *filter.Featured {
			continue
		}
		out = append(out, copyDeal(d))
	}
	return out, len(out), nil
}

func (m *mockDealRepository) Participants(ctx context.Context, dealID uuid.UUID) ([]*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[dealID], nil
}

func (m *mockDealRepository) Join(ctx context.Context, req repository.JoinRequest) (*repository.JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.deals[req.DealID]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	stored.ExpireIfOverdue(req.Now)
	deal := copyDeal(stored)
	if err := deal.CheckJoinable(req.UserID, req.Now); err != nil {
		return nil, err
	}

	var product *domain.Product
	if req.ProductID != nil {
		p, err := m.products.FindByID(ctx, *req.ProductID)
		if err != nil {
			return nil, err
		}
		product = p
	}

	if err := deal.Join(req.UserID, product, req.Now); err != nil {
		return nil, err
	}

	if product != nil {
		if err := m.products.Update(ctx, product); err != nil {
			return nil, err
		}
	}
	m.deals[deal.ID] = deal
	m.participants[deal.ID] = append(m.participants[deal.ID], &domain.Participant{
		DealID: deal.ID, UserID: req.UserID, ProductID: req.ProductID, JoinedAt: req.Now,
	})

	return &repository.JoinResult{Deal: copyDeal(deal), Product: product}, nil
}

func (m *mockDealRepository) Update(ctx context.Context, id uuid.UUID, now time.Time, mutate func(deal *domain.Deal) error) (*domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.deals[id]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	stored.ExpireIfOverdue(now)
	deal := copyDeal(stored)
	if err := mutate(deal); err != nil {
		return nil, err
	}
	m.deals[id] = deal
	return copyDeal(deal), nil
}

func (m *mockDealRepository) Delete(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deal, ok := m.deals[id]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	if deal.CurrentParticipants == 0 {
		delete(m.deals, id)
		return nil, nil
	}
	if deal.Status.Terminal() {
		return nil, domain.NewInvalidStateError(deal.Status)
	}
	deal.Status = domain.DealStatusCancelled
	return copyDeal(deal), nil
}

func (m *mockDealRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DealStatus, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deal, ok := m.deals[id]
	if !ok || deal.Status != from {
		return false, nil
	}
	deal.Status = to
	deal.UpdatedAt = now
	return true, nil
}

func (m *mockDealRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls++
	var n int64
	for _, d := range m.deals {
		if d.ExpireIfOverdue(now) {
			n++
		}
	}
	return n, nil
}

func (m *mockDealRepository) stored(id uuid.UUID) *domain.Deal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyDeal(m.deals[id])
}

func copyDeal(d *domain.Deal) *domain.Deal {
	cp := *d
	cp.Participants = append([]uuid.UUID{}, d.Participants...)
	return &cp
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingDispatcher) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jam3a/internal/database"
	"jam3a/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultDealPageSize = 20
	MaxDealPageSize     = 100
)

const dealColumns = `
	d.id, d.code, d.title, d.title_ar, d.description, d.description_ar, d.category_id,
	d.regular_price, d.jam3a_price, d.discount_percentage, d.min_participants,
	d.max_participants, d.current_participants, d.expiry_date, d.status, d.featured,
	d.image_url, d.created_by, d.created_at, d.updated_at`

// DealFilter narrows and orders a deal listing
type DealFilter struct {
	CategoryID      *uuid.UUID
	Status          *domain.DealStatus
	Featured        *bool
	MinParticipants *int
	MaxParticipants *int
	Search          string
	SortBy          string // created_at, discount or participants
	SortOrder       SortOrder
	Page            int
	PageSize        int
}

// JoinRequest identifies who joins which deal, optionally through a product
type JoinRequest struct {
	DealID    uuid.UUID
	UserID    uuid.UUID
	ProductID *uuid.UUID
	Now       time.Time
}

// JoinResult is the committed state after a successful join
type JoinResult struct {
	Deal    *domain.Deal
	Product *domain.Product
}

// DealRepository defines the interface for deal data access
type DealRepository interface {
	Create(ctx context.Context, deal *domain.Deal) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error)
	List(ctx context.Context, filter DealFilter) ([]*domain.Deal, int, error)
	Participants(ctx context.Context, dealID uuid.UUID) ([]*domain.Participant, error)
	Join(ctx context.Context, req JoinRequest) (*JoinResult, error)
	Update(ctx context.Context, id uuid.UUID, now time.Time, mutate func(deal *domain.Deal) error) (*domain.Deal, error)
	Delete(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Deal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DealStatus, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type dealRepository struct {
	db            *sql.DB
	logger        *zap.Logger
	retryAttempts int
}

// NewDealRepository creates a new instance of DealRepository. Locked
// read-modify-write operations are retried up to retryAttempts times on
// transient storage failures.
func NewDealRepository(db *sql.DB, logger *zap.Logger, retryAttempts int) DealRepository {
	return &dealRepository{db: db, logger: logger, retryAttempts: retryAttempts}
}

// Create inserts a new deal and assigns its human-readable code
func (r *dealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	var seq int64
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('deal_code_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate deal code: %w", err)
	}
	deal.Code = domain.FormatDealCode(seq)

	query := `
		INSERT INTO deals (id, code, title, title_ar, description, description_ar, category_id,
			regular_price, jam3a_price, discount_percentage, min_participants, max_participants,
			current_participants, expiry_date, status, featured, image_url, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		deal.ID,
		deal.Code,
		deal.Title,
		deal.TitleAr,
		deal.Description,
		deal.DescriptionAr,
		deal.CategoryID,
		deal.RegularPrice,
		deal.Jam3aPrice,
		deal.DiscountPercentage,
		deal.MinParticipants,
		deal.MaxParticipants,
		deal.CurrentParticipants,
		deal.ExpiryDate,
		deal.Status,
		deal.Featured,
		deal.ImageURL,
		deal.CreatedBy,
		deal.CreatedAt,
		deal.UpdatedAt,
	)
	if err != nil {
		if database.IsCheckViolation(err) {
			return domain.NewValidationError("deal violates a storage constraint")
		}
		return fmt.Errorf("failed to create deal: %w", err)
	}

	return nil
}

// FindByID retrieves a deal with its category and participant ids
func (r *dealRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Deal, error) {
	query := `
		SELECT ` + dealColumns + `,
			c.id, c.name, c.name_ar, c.description, c.active, c.created_at
		FROM deals d
		JOIN categories c ON c.id = d.category_id
		WHERE d.id = $1
	`

	deal := &domain.Deal{}
	category := &domain.Category{}
	dest := append(dealScanDest(deal),
		&category.ID, &category.Name, &category.NameAr, &category.Description, &category.Active, &category.CreatedAt)

	if err := r.db.QueryRowContext(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to find deal by ID: %w", err)
	}
	deal.Category = category

	participants, err := r.participantIDs(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	deal.Participants = participants

	return deal, nil
}

// List retrieves deals matching filter with pagination and sorting
func (r *dealRepository) List(ctx context.Context, filter DealFilter) ([]*domain.Deal, int, error) {
	validSortFields := map[string]string{
		"created_at":   "d.created_at",
		"discount":     "d.discount_percentage",
		"participants": "d.current_participants",
	}

	sortColumn, ok := validSortFields[filter.SortBy]
	if !ok {
		sortColumn = "d.created_at"
	}

	sortOrder := filter.SortOrder
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize, DefaultDealPageSize, MaxDealPageSize)

	conditions := []string{}
	args := []interface{}{}
	addCondition := func(format string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if filter.CategoryID != nil {
		addCondition("d.category_id = $%d", *filter.CategoryID)
	}
	if filter.Status != nil {
		addCondition("d.status = $%d", *filter.Status)
	}
	if filter.Featured != nil {
		addCondition("d.featured = $%d", *filter.Featured)
	}
	if filter.MinParticipants != nil {
		addCondition("d.current_participants >= $%d", *filter.MinParticipants)
	}
	if filter.MaxParticipants != nil {
		addCondition("d.current_participants <= $%d", *filter.MaxParticipants)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		addCondition("(d.title ILIKE $%[1]d OR d.title_ar ILIKE $%[1]d)", "%"+search+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM deals d %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count deals: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals d
		%s
		ORDER BY %s %s, d.id
		LIMIT $%d OFFSET $%d
	`, dealColumns, whereClause, sortColumn, sortOrder, len(args)+1, len(args)+2)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()

	deals := []*domain.Deal{}
	for rows.Next() {
		deal := &domain.Deal{}
		if err := rows.Scan(dealScanDest(deal)...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, deal)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating deals: %w", err)
	}

	return deals, total, nil
}

// Participants lists the members of a deal in join order
func (r *dealRepository) Participants(ctx context.Context, dealID uuid.UUID) ([]*domain.Participant, error) {
	query := `
		SELECT deal_id, user_id, product_id, joined_at
		FROM deal_participants
		WHERE deal_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []*domain.Participant{}
	for rows.Next() {
		p := &domain.Participant{}
		var productID uuid.NullUUID
		if err := rows.Scan(&p.DealID, &p.UserID, &productID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if productID.Valid {
			p.ProductID = &productID.UUID
		}
		participants = append(participants, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// Join adds a participant inside one transaction holding row locks on the
// deal and, when given, the product. Concurrent joins on the same deal are
// serialized, so capacity and duplicate checks see committed state.
// A lazily detected expiry is committed even though the join fails.
func (r *dealRepository) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	var (
		result  *JoinResult
		joinErr error
	)

	err := database.WithRetry(ctx, r.retryAttempts, r.logger, func() error {
		result, joinErr = nil, nil

		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			deal, err := r.lockDeal(ctx, tx, req.DealID)
			if err != nil {
				return err
			}

			if deal.ExpireIfOverdue(req.Now) {
				if err := r.saveState(ctx, tx, deal, req.Now); err != nil {
					return err
				}
			}

			if joinErr = deal.CheckJoinable(req.UserID, req.Now); joinErr != nil {
				return nil
			}

			var product *domain.Product
			if req.ProductID != nil {
				product, err = lockProduct(ctx, tx, *req.ProductID)
				if err != nil {
					return err
				}
			}

			if joinErr = deal.Join(req.UserID, product, req.Now); joinErr != nil {
				return nil
			}

			if err := r.insertParticipant(ctx, tx, deal.ID, req.UserID, req.ProductID, req.Now); err != nil {
				return err
			}
			if err := r.saveState(ctx, tx, deal, req.Now); err != nil {
				return err
			}
			if product != nil {
				if err := decrementStock(ctx, tx, product.ID, req.Now); err != nil {
					return err
				}
			}

			result = &JoinResult{Deal: deal, Product: product}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if joinErr != nil {
		return nil, joinErr
	}

	return result, nil
}

// Update applies mutate to the locked deal and persists every field except
// the participant count, which only joins change. An overdue active deal is
// expired first and that transition is committed even when mutate fails.
func (r *dealRepository) Update(ctx context.Context, id uuid.UUID, now time.Time, mutate func(deal *domain.Deal) error) (*domain.Deal, error) {
	var (
		updated   *domain.Deal
		mutateErr error
	)

	err := database.WithRetry(ctx, r.retryAttempts, r.logger, func() error {
		mutateErr = nil
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			deal, err := r.lockDeal(ctx, tx, id)
			if err != nil {
				return err
			}

			if deal.ExpireIfOverdue(now) {
				if err := r.saveState(ctx, tx, deal, now); err != nil {
					return err
				}
				r.logger.Info("Deal expired on update", zap.String("deal_id", deal.ID.String()))
			}

			if err := mutate(deal); err != nil {
				if deal.Status == domain.DealStatusExpired {
					// keep the expiry committed
					mutateErr = err
					return nil
				}
				return err
			}

			query := `
				UPDATE deals
				SET title = $2, title_ar = $3, description = $4, description_ar = $5, category_id = $6,
				    regular_price = $7, jam3a_price = $8, discount_percentage = $9, min_participants = $10,
				    max_participants = $11, expiry_date = $12, status = $13, featured = $14,
				    image_url = $15, updated_at = $16
				WHERE id = $1
			`

			_, err = tx.ExecContext(
				ctx,
				query,
				deal.ID,
				deal.Title,
				deal.TitleAr,
				deal.Description,
				deal.DescriptionAr,
				deal.CategoryID,
				deal.RegularPrice,
				deal.Jam3aPrice,
				deal.DiscountPercentage,
				deal.MinParticipants,
				deal.MaxParticipants,
				deal.ExpiryDate,
				deal.Status,
				deal.Featured,
				deal.ImageURL,
				deal.UpdatedAt,
			)
			if err != nil {
				if database.IsCheckViolation(err) {
					return domain.NewValidationError("deal violates a storage constraint")
				}
				return fmt.Errorf("failed to update deal: %w", err)
			}

			updated = deal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if mutateErr != nil {
		return nil, mutateErr
	}

	return updated, nil
}

// Delete removes a deal without participants. A deal with participants is
// cancelled instead and returned; a nil deal means it was removed.
func (r *dealRepository) Delete(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Deal, error) {
	var cancelled *domain.Deal

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		deal, err := r.lockDeal(ctx, tx, id)
		if err != nil {
			return err
		}

		if deal.CurrentParticipants == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM deals WHERE id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete deal: %w", err)
			}
			return nil
		}

		if deal.Status.Terminal() {
			return domain.NewError(domain.CodeInvalidState,
				fmt.Sprintf("deal in status %s with participants cannot be deleted", deal.Status))
		}
		if err := deal.TransitionTo(domain.DealStatusCancelled); err != nil {
			return err
		}
		if err := r.saveState(ctx, tx, deal, now); err != nil {
			return err
		}

		cancelled = deal
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// UpdateStatus performs a compare-and-set of the status column
func (r *dealRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DealStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE deals SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update deal status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ExpireOverdue transitions every active deal past its expiry date
func (r *dealRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE deals SET status = $1, updated_at = $3 WHERE status = $2 AND expiry_date < $3`,
		domain.DealStatusExpired, domain.DealStatusActive, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue deals: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func (r *dealRepository) lockDeal(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals d WHERE d.id = $1 FOR UPDATE`

	deal := &domain.Deal{}
	if err := tx.QueryRowContext(ctx, query, id).Scan(dealScanDest(deal)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to lock deal: %w", err)
	}

	participants, err := r.participantIDs(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	deal.Participants = participants

	return deal, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *dealRepository) participantIDs(ctx context.Context, q queryer, dealID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM deal_participants WHERE deal_id = $1 ORDER BY joined_at ASC`, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return ids, nil
}

func (r *dealRepository) insertParticipant(ctx context.Context, tx *sql.Tx, dealID, userID uuid.UUID, productID *uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO deal_participants (deal_id, user_id, product_id, joined_at) VALUES ($1, $2, $3, $4)`,
		dealID, userID, productID, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "deal_participants_pkey") {
			return domain.ErrDuplicateJoin
		}
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// saveState persists the fields a join or lifecycle transition changes
func (r *dealRepository) saveState(ctx context.Context, tx *sql.Tx, deal *domain.Deal, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE deals SET current_participants = $2, status = $3, updated_at = $4 WHERE id = $1`,
		deal.ID, deal.CurrentParticipants, deal.Status, now,
	)
	if err != nil {
		if database.IsCheckViolation(err) {
			return domain.ErrFull
		}
		return fmt.Errorf("failed to save deal state: %w", err)
	}
	return nil
}

func dealScanDest(d *domain.Deal) []interface{} {
	return []interface{}{
		&d.ID,
		&d.Code,
		&d.Title,
		&d.TitleAr,
		&d.Description,
		&d.DescriptionAr,
		&d.CategoryID,
		&d.RegularPrice,
		&d.Jam3aPrice,
		&d.DiscountPercentage,
		&d.MinParticipants,
		&d.MaxParticipants,
		&d.CurrentParticipants,
		&d.ExpiryDate,
		&d.Status,
		&d.Featured,
		&d.ImageURL,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/agent-jobs/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("record not found")

// Store reads and appends the rows agent services work on. Queries are
// written with ? placeholders and rebound for the connected driver.
type Store struct {
	db *sqlx.DB
}

// New creates a new Store instance
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	err := s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) selectRows(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}

// GetTemplate retrieves a legal template by id
func (s *Store) GetTemplate(ctx context.Context, id int64) (*model.Template, error) {
	var t model.Template
	query := `
		SELECT id, title, category, jurisdiction, content, created_at
		FROM legal_templates
		WHERE id = ?
	`
	if err := s.get(ctx, &t, query, id); err != nil {
		return nil, fmt.Errorf("failed to get template %d: %w", id, err)
	}
	return &t, nil
}

// GetInstance retrieves a filled-in document by id
func (s *Store) GetInstance(ctx context.Context, id int64) (*model.DocumentInstance, error) {
	var d model.DocumentInstance
	query := `
		SELECT id, template_id, owner_id, title, content, created_at
		FROM document_instances
		WHERE id = ?
	`
	if err := s.get(ctx, &d, query, id); err != nil {
		return nil, fmt.Errorf("failed to get document instance %d: %w", id, err)
	}
	return &d, nil
}

// CreateDocumentReview appends a review record
func (s *Store) CreateDocumentReview(ctx context.Context, r *model.DocumentReview) error {
	query := `
		INSERT INTO document_reviews (
			id, document_id, instance_id, category,
			overall_score, risk_score, issue_count, summary, created_at
		) VALUES (
			:id, :document_id, :instance_id, :category,
			:overall_score, :risk_score, :issue_count, :summary, :created_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to create document review: %w", err)
	}
	return nil
}

// CreateAuditLog appends a document audit entry
func (s *Store) CreateAuditLog(ctx context.Context, l *model.AuditLog) error {
	query := `
		INSERT INTO document_audit_logs (
			id, document_id, instance_id, action, details, created_at
		) VALUES (
			:id, :document_id, :instance_id, :action, :details, :created_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

const productColumns = `id, seller_id, title, description, category, price_cents, stock, image_count, views, sales, created_at`

// GetProduct retrieves a product by id
func (s *Store) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	if err := s.get(ctx, &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &p, nil
}

// ListSellerProducts returns every product listed by a seller
func (s *Store) ListSellerProducts(ctx context.Context, sellerID string) ([]model.Product, error) {
	var products []model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE seller_id = ? ORDER BY id`
	if err := s.selectRows(ctx, &products, query, sellerID); err != nil {
		return nil, fmt.Errorf("failed to list seller products: %w", err)
	}
	return products, nil
}

// ListPopularProducts returns best sellers, optionally restricted to categories
func (s *Store) ListPopularProducts(ctx context.Context, categories []string, limit int) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE stock > 0`
	var args []any
	if len(categories) > 0 {
		q, a, err := sqlx.In(` AND category IN (?)`, categories)
		if err != nil {
			return nil, fmt.Errorf("failed to expand categories: %w", err)
		}
		query += q
		args = append(args, a...)
	}
	query += ` ORDER BY sales DESC, views DESC, id LIMIT ?`
	args = append(args, limit)

	var products []model.Product
	if err := s.selectRows(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return products, nil
}

// ListProductsByIDs loads the given products
func (s *Store) ListProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to expand product ids: %w", err)
	}

	var products []model.Product
	if err := s.selectRows(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// ListProductReviews returns the most recent reviews of a product
func (s *Store) ListProductReviews(ctx context.Context, productID int64, limit int) ([]model.ProductReview, error) {
	var reviews []model.ProductReview
	query := `
		SELECT id, product_id, user_id, rating, body, verified_purchase, created_at
		FROM product_reviews
		WHERE product_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	if err := s.selectRows(ctx, &reviews, query, productID, limit); err != nil {
		return nil, fmt.Errorf("failed to list product reviews: %w", err)
	}
	return reviews, nil
}

// GetPurchase retrieves a purchase by id
func (s *Store) GetPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	var p model.Purchase
	query := `
		SELECT id, buyer_id, product_id, amount_cents, status, created_at
		FROM purchases
		WHERE id = ?
	`
	if err := s.get(ctx, &p, query, id); err != nil {
		return nil, fmt.Errorf("failed to get purchase %d: %w", id, err)
	}
	return &p, nil
}

// ListBuyerPurchases returns a buyer's most recent purchases
func (s *Store) ListBuyerPurchases(ctx context.Context, buyerID string, limit int) ([]model.Purchase, error) {
	var purchases []model.Purchase
	query := `
		SELECT id, buyer_id, product_id, amount_cents, status, created_at
		FROM purchases
		WHERE buyer_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	if err := s.selectRows(ctx, &purchases, query, buyerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// CountRecentPurchases counts a buyer's purchases created at or after since (epoch ms)
func (s *Store) CountRecentPurchases(ctx context.Context, buyerID string, since int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM purchases WHERE buyer_id = ? AND created_at >= ?`
	if err := s.get(ctx, &n, query, buyerID, since); err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return n, nil
}

package model

// Template is a reusable legal document.
type Template struct {
	ID           int64  `db:"id"`
	Title        string `db:"title"`
	Category     string `db:"category"`
	Jurisdiction string `db:"jurisdiction"`
	Content      string `db:"content"`
	CreatedAt    int64  `db:"created_at"`
}

// DocumentInstance is a template filled in by a user.
type DocumentInstance struct {
	ID         int64  `db:"id"`
	TemplateID int64  `db:"template_id"`
	OwnerID    string `db:"owner_id"`
	Title      string `db:"title"`
	Content    string `db:"content"`
	CreatedAt  int64  `db:"created_at"`
}

// DocumentReview is the append-only record of one review run.
type DocumentReview struct {
	ID           string `db:"id"`
	DocumentID   int64  `db:"document_id"`
	InstanceID   int64  `db:"instance_id"`
	Category     string `db:"category"`
	OverallScore int    `db:"overall_score"`
	RiskScore    int    `db:"risk_score"`
	IssueCount   int    `db:"issue_count"`
	Summary      string `db:"summary"`
	CreatedAt    int64  `db:"created_at"`
}

// AuditLog records an agent action taken on a document.
type AuditLog struct {
	ID         string `db:"id"`
	DocumentID int64  `db:"document_id"`
	InstanceID int64  `db:"instance_id"`
	Action     string `db:"action"`
	Details    string `db:"details"`
	CreatedAt  int64  `db:"created_at"`
}

// Product is a marketplace listing.
type Product struct {
	ID          int64  `db:"id"`
	SellerID    string `db:"seller_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Category    string `db:"category"`
	PriceCents  int64  `db:"price_cents"`
	Stock       int    `db:"stock"`
	ImageCount  int    `db:"image_count"`
	Views       int    `db:"views"`
	Sales       int    `db:"sales"`
	CreatedAt   int64  `db:"created_at"`
}

// ProductReview is a buyer review of a product.
type ProductReview struct {
	ID               int64  `db:"id"`
	ProductID        int64  `db:"product_id"`
	UserID           string `db:"user_id"`
	Rating           int    `db:"rating"`
	Body             string `db:"body"`
	VerifiedPurchase bool   `db:"verified_purchase"`
	CreatedAt        int64  `db:"created_at"`
}

// Purchase is a completed or pending order line.
type Purchase struct {
	ID          int64  `db:"id"`
	BuyerID     string `db:"buyer_id"`
	ProductID   int64  `db:"product_id"`
	AmountCents int64  `db:"amount_cents"`
	Status      string `db:"status"`
	CreatedAt   int64  `db:"created_at"`
}

package catalog

import "time"

// Product is a tenant-owned catalog item
type Product struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	CategoryID  *int64 `json:"category_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// PriceCents avoids floating-point money
	PriceCents int64      `json:"price_cents"`
	Stock      int64      `json:"stock"`
	IsDeleted  bool       `json:"-"`
	DeletedAt  *time.Time `json:"-"`
	DeletedBy  *int64     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Category groups products within a company
type Category struct {
	ID        int64      `json:"id"`
	CompanyID int64      `json:"company_id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	IsDeleted bool       `json:"-"`
	DeletedAt *time.Time `json:"-"`
	DeletedBy *int64     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

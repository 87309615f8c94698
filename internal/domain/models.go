package domain

import "time"

type Product struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	MinStock    int    `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Stock       *int    `json:"stock,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SaleLineRequest is one cart line as submitted at checkout. Unit price and
// subtotal are snapshotted server-side from the catalog; the client-provided
// amounts are informational only.
type SaleLineRequest struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPrice,omitempty"`
	SubtotalCents  int64  `json:"subtotal,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    string            `json:"customerId,omitempty"`
	PaymentMethod string            `json:"paymentMethod"`
	Notes         string            `json:"notes,omitempty"`
	TaxCents      int64             `json:"tax,omitempty"`
	DiscountCents int64             `json:"discount,omitempty"`
	Items         []SaleLineRequest `json:"items"`
}

type SaleItem struct {
	ID             string `json:"id"`
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Sale struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items"`
}

type InvoiceCreateRequest struct {
	SaleID  string `json:"saleId"`
	DueDate string `json:"dueDate,omitempty"`
}

type Invoice struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	SaleID    string     `json:"sale_id"`
	Number    string     `json:"number"`
	Status    string     `json:"status"`
	Email     string     `json:"email,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type InvoiceSendRequest struct {
	Email string `json:"email"`
}

// InvoiceDetail is the read view joining an invoice with its sale, the sale's
// customer and the sold line items for presentation.
type InvoiceDetail struct {
	Invoice  Invoice   `json:"invoice"`
	Sale     Sale      `json:"sale"`
	Customer *Customer `json:"customer,omitempty"`
}

type DashboardSummary struct {
	Sales            int64 `json:"sales"`
	RevenueCents     int64 `json:"revenue_cents"`
	InvoicesIssued   int64 `json:"invoices_issued"`
	InvoicesPaid     int64 `json:"invoices_paid"`
	InvoicesCanceled int64 `json:"invoices_canceled"`
	Customers        int64 `json:"customers"`
	LowStockProducts int64 `json:"low_stock_products"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated user a request runs on behalf of. It
// travels through context.Context rather than any process-wide session state.
type Actor struct {
	UserID   string
	Username string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCanceled  = "canceled"
)

const (
	InvoiceStatusIssued   = "issued"
	InvoiceStatusSent     = "sent"
	InvoiceStatusPaid     = "paid"
	InvoiceStatusCanceled = "canceled"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentPix      = "pix"
	PaymentTransfer = "transfer"
)

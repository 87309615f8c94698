package store

import (
	"context"
	"errors"

	"gestor/backend/internal/domain"
)

var (
	// ErrNotFound covers both missing rows and rows owned by another user;
	// callers must not be able to distinguish the two.
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvoiceExists is returned by CreateInvoice when the sale already has
	// an invoice; callers fetch and return the existing one.
	ErrInvoiceExists = errors.New("invoice already exists for sale")
)

type Repository interface {
	ListProducts(ctx context.Context, userID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, userID, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, userID string, productIDs []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, userID, customerID string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	// CreateSale persists the sale header and its items and decrements each
	// referenced product's stock by the sold quantity, clamped at zero, all
	// within one transaction: a failure anywhere rolls back every step.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, userID, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, userID string, limit int) ([]domain.Sale, error)

	// CreateInvoice inserts the invoice; the store enforces at most one
	// invoice per sale and reports ErrInvoiceExists on a duplicate.
	CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, userID, invoiceID string) (*domain.Invoice, error)
	GetInvoiceBySale(ctx context.Context, userID, saleID string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, userID string, limit int) ([]domain.Invoice, error)
	// UpdateInvoiceStatus overwrites the status unconditionally; transition
	// ordering is not guarded at this layer.
	UpdateInvoiceStatus(ctx context.Context, userID, invoiceID, status, email string) (*domain.Invoice, error)

	GetDashboardSummary(ctx context.Context, userID string) (domain.DashboardSummary, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

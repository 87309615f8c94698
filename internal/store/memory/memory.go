package memory

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"gestor/backend/internal/domain"
	"gestor/backend/internal/store"
	"gestor/backend/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used for dev mode and tests.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	salesByID       map[string]domain.Sale
	invoicesByID    map[string]domain.Invoice
	invoiceBySale   map[string]string
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		salesByID:       make(map[string]domain.Sale),
		invoicesByID:    make(map[string]domain.Invoice),
		invoiceBySale:   make(map[string]string),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user account for dev/demo mode. The
// credential is read from SEED_ADMIN_PASSWORD; if unset a hardcoded dev
// default is used with a warning. These credentials are never used in
// production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Warn().Msg("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD to override")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("memory store: failed to hash seed password")
	}

	return map[string]domain.UserAccount{
		"admin": {
			ID:        "user-admin",
			Username:  "admin",
			Password:  string(hash),
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// NewSeeded returns a Store pre-loaded with a demo user, catalog and
// customers so the API is usable without a database.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-cafe-01", Name: "Café Torrado 500g", PriceCents: 2890, Stock: 42, MinStock: 10},
		{ID: "prod-acucar-01", Name: "Açúcar Cristal 1kg", PriceCents: 650, Stock: 80, MinStock: 20},
		{ID: "prod-arroz-01", Name: "Arroz Branco 5kg", PriceCents: 2450, Stock: 35, MinStock: 8},
		{ID: "prod-feijao-01", Name: "Feijão Carioca 1kg", PriceCents: 890, Stock: 50, MinStock: 12},
		{ID: "prod-oleo-01", Name: "Óleo de Soja 900ml", PriceCents: 780, Stock: 60, MinStock: 15},
		{ID: "prod-leite-01", Name: "Leite Integral 1L", PriceCents: 520, Stock: 96, MinStock: 24},
		{ID: "prod-sabao-01", Name: "Sabão em Pó 800g", PriceCents: 1240, Stock: 28, MinStock: 6},
		{ID: "prod-biscoito-01", Name: "Biscoito Recheado", PriceCents: 380, Stock: 120, MinStock: 30},
	}
	for _, p := range products {
		p.UserID = "user-admin"
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-maria-01", Name: "Maria Oliveira", Email: "maria@example.com", Phone: "+55 11 98765-0001"},
		{ID: "cust-joao-01", Name: "João Santos", Email: "joao@example.com", Phone: "+55 11 98765-0002"},
		{ID: "cust-ana-01", Name: "Ana Costa", Email: "ana@example.com"},
	}
	for _, c := range customers {
		c.UserID = "user-admin"
		c.CreatedAt = now
		s.customers[c.ID] = c
	}

	return s
}

func (s *Store) ListProducts(_ context.Context, userID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.UserID == userID && p.Active {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, userID, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, userID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.UserID == userID && p.Active {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	s.mu.Lock()
	s.products[product.ID] = product
	s.mu.Unlock()

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.UserID != product.UserID {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context, userID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.UserID == userID {
			customers = append(customers, c)
		}
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, userID, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.customers[customer.ID] = customer
	s.mu.Unlock()

	created := customer
	return &created, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every line before mutating anything so a bad line cannot
	// leave a partial stock decrement behind.
	for _, item := range sale.Items {
		p, ok := s.products[item.ProductID]
		if !ok || p.UserID != sale.UserID {
			return nil, store.ErrNotFound
		}
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Quantity
		if p.Stock < 0 {
			p.Stock = 0
		}
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p

		item.ID = xid.New("sitem")
		item.SaleID = sale.ID
		items = append(items, item)
	}
	sale.Items = items
	s.salesByID[sale.ID] = sale

	created := sale
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, userID, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok || sale.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, userID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.UserID == userID {
			sales = append(sales, sale)
		}
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.SaleID == "" || inv.Number == "" {
		return nil, store.ErrInvalidInput
	}
	if inv.ID == "" {
		inv.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	if inv.Status == "" {
		inv.Status = domain.InvoiceStatusIssued
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoiceBySale[inv.SaleID]; exists {
		return nil, store.ErrInvoiceExists
	}
	s.invoicesByID[inv.ID] = inv
	s.invoiceBySale[inv.SaleID] = inv.ID

	created := inv
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, userID, invoiceID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoicesByID[invoiceID]
	if !ok || inv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) GetInvoiceBySale(_ context.Context, userID, saleID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoiceID, ok := s.invoiceBySale[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	inv := s.invoicesByID[invoiceID]
	if inv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) ListInvoices(_ context.Context, userID string, limit int) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		if inv.UserID == userID {
			invoices = append(invoices, inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].CreatedAt.After(invoices[j].CreatedAt) })
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) UpdateInvoiceStatus(_ context.Context, userID, invoiceID, status, email string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoicesByID[invoiceID]
	if !ok || inv.UserID != userID {
		return nil, store.ErrNotFound
	}
	inv.Status = status
	if email != "" {
		inv.Email = email
	}
	inv.UpdatedAt = time.Now().UTC()
	s.invoicesByID[invoiceID] = inv

	updated := inv
	return &updated, nil
}

func (s *Store) GetDashboardSummary(_ context.Context, userID string) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.DashboardSummary
	for _, sale := range s.salesByID {
		if sale.UserID != userID || sale.Status == domain.SaleStatusCanceled {
			continue
		}
		summary.Sales++
		summary.RevenueCents += sale.TotalCents
	}
	for _, inv := range s.invoicesByID {
		if inv.UserID != userID {
			continue
		}
		switch inv.Status {
		case domain.InvoiceStatusPaid:
			summary.InvoicesPaid++
		case domain.InvoiceStatusCanceled:
			summary.InvoicesCanceled++
		}
		summary.InvoicesIssued++
	}
	for _, c := range s.customers {
		if c.UserID == userID {
			summary.Customers++
		}
	}
	for _, p := range s.products {
		if p.UserID == userID && p.Active && p.Stock <= p.MinStock {
			summary.LowStockProducts++
		}
	}
	return summary, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

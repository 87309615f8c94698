package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gestor/backend/internal/domain"
	"gestor/backend/internal/store"
	"gestor/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context, userID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), price_cents, stock, min_stock, active, created_at, updated_at
		FROM products
		WHERE user_id = $1 AND active = true
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, userID, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), price_cents, stock, min_stock, active, created_at, updated_at
		FROM products
		WHERE id = $1 AND user_id = $2
	`, productID, userID).Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, userID string, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), price_cents, stock, min_stock, active, created_at, updated_at
		FROM products
		WHERE user_id = $1 AND active = true AND id = ANY($2)
	`, userID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(productIDs))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, user_id, name, description, price_cents, stock, min_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.UserID, product.Name, nullIfEmpty(product.Description), product.PriceCents, product.Stock, product.MinStock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, description = $4, price_cents = $5, stock = $6, min_stock = $7, active = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2
	`, product.ID, product.UserID, product.Name, nullIfEmpty(product.Description), product.PriceCents, product.Stock, product.MinStock, product.Active, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) ListCustomers(ctx context.Context, userID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM customers
		WHERE user_id = $1
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, userID, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM customers
		WHERE id = $1 AND user_id = $2
	`, customerID, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	customer.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, user_id, name, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.UserID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone), customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	sale.CreatedAt = time.Now().UTC()

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(sale.Items)

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id
		FROM products
		WHERE user_id = $1 AND active = true AND id = ANY($2)
		FOR UPDATE
	`, sale.UserID, productIDs)
	if err != nil {
		return nil, err
	}
	locked := make(map[string]bool, len(productIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		locked[id] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, id := range productIDs {
		if !locked[id] {
			return nil, store.ErrNotFound
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, user_id, customer_id, payment_method, status, notes, subtotal_cents, tax_cents, discount_cents, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.UserID, nullIfEmpty(sale.CustomerID), sale.PaymentMethod, sale.Status, nullIfEmpty(sale.Notes),
		sale.SubtotalCents, sale.TaxCents, sale.DiscountCents, sale.TotalCents, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		item.ID = xid.New("sitem")
		item.SaleID = sale.ID

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return nil, err
		}

		// Oversell is allowed; stock never goes below zero.
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = GREATEST(stock - $3, 0), updated_at = now()
			WHERE id = $1 AND user_id = $2
		`, item.ProductID, sale.UserID, item.Quantity)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}
	sale.Items = items

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, userID, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(customer_id, ''), payment_method, status, COALESCE(notes, ''), subtotal_cents, tax_cents, discount_cents, total_cents, created_at
		FROM sales
		WHERE id = $1 AND user_id = $2
	`, saleID, userID).Scan(&sale.ID, &sale.UserID, &sale.CustomerID, &sale.PaymentMethod, &sale.Status, &sale.Notes,
		&sale.SubtotalCents, &sale.TaxCents, &sale.DiscountCents, &sale.TotalCents, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.listSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) ListSales(ctx context.Context, userID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(customer_id, ''), payment_method, status, COALESCE(notes, ''), subtotal_cents, tax_cents, discount_cents, total_cents, created_at
		FROM sales
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.UserID, &sale.CustomerID, &sale.PaymentMethod, &sale.Status, &sale.Notes,
			&sale.SubtotalCents, &sale.TaxCents, &sale.DiscountCents, &sale.TotalCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.listSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}

	return sales, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.SaleID == "" || inv.Number == "" {
		return nil, store.ErrInvalidInput
	}
	if inv.ID == "" {
		inv.ID = xid.New("inv")
	}
	if inv.Status == "" {
		inv.Status = domain.InvoiceStatusIssued
	}

	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	// invoices.sale_id carries a UNIQUE constraint; duplicates surface as a
	// unique violation rather than a read-then-write race.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, user_id, sale_id, number, status, email, due_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, inv.ID, inv.UserID, inv.SaleID, inv.Number, inv.Status, nullIfEmpty(inv.Email), nullTime(inv.DueDate), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvoiceExists
		}
		return nil, err
	}

	created := inv
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, userID, invoiceID string) (*domain.Invoice, error) {
	return s.getInvoice(ctx, `WHERE id = $1 AND user_id = $2`, invoiceID, userID)
}

func (s *Store) GetInvoiceBySale(ctx context.Context, userID, saleID string) (*domain.Invoice, error) {
	return s.getInvoice(ctx, `WHERE sale_id = $1 AND user_id = $2`, saleID, userID)
}

func (s *Store) getInvoice(ctx context.Context, where string, args ...any) (*domain.Invoice, error) {
	var inv domain.Invoice
	var dueDate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, sale_id, number, status, COALESCE(email, ''), due_date, created_at, updated_at
		FROM invoices
		`+where, args...).Scan(&inv.ID, &inv.UserID, &inv.SaleID, &inv.Number, &inv.Status, &inv.Email, &dueDate, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.Time.UTC()
		inv.DueDate = &due
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, userID string, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, sale_id, number, status, COALESCE(email, ''), due_date, created_at, updated_at
		FROM invoices
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		var inv domain.Invoice
		var dueDate sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.SaleID, &inv.Number, &inv.Status, &inv.Email, &dueDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		if dueDate.Valid {
			due := dueDate.Time.UTC()
			inv.DueDate = &due
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return invoices, nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, userID, invoiceID, status, email string) (*domain.Invoice, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = $3, email = COALESCE($4, email), updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, invoiceID, userID, status, nullIfEmpty(email))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetInvoice(ctx, userID, invoiceID)
}

func (s *Store) GetDashboardSummary(ctx context.Context, userID string) (domain.DashboardSummary, error) {
	var summary domain.DashboardSummary

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE user_id = $1 AND status <> 'canceled'
	`, userID).Scan(&summary.Sales, &summary.RevenueCents)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'canceled')
		FROM invoices
		WHERE user_id = $1
	`, userID).Scan(&summary.InvoicesIssued, &summary.InvoicesPaid, &summary.InvoicesCanceled)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM customers WHERE user_id = $1
	`, userID).Scan(&summary.Customers)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM products WHERE user_id = $1 AND active = true AND stock <= min_stock
	`, userID).Scan(&summary.LowStockProducts)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Username, user.Password, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

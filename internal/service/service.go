package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"gestor/backend/internal/cache"
	"gestor/backend/internal/cart"
	"gestor/backend/internal/domain"
	"gestor/backend/internal/invoice"
	"gestor/backend/internal/metrics"
	"gestor/backend/internal/store"
)

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the context. Every service
// operation reads it back from there; no request-scoped state lives anywhere
// else.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var ErrNoActor = errors.New("no authenticated actor")

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	metrics    *metrics.Metrics
	catalogTTL time.Duration
}

func New(repo store.Repository, catalog cache.CatalogCache, m *metrics.Metrics, catalogTTL time.Duration) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL < time.Second {
		catalogTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		metrics:    m,
		catalogTTL: catalogTTL,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrNoActor
	}
	return actor, nil
}

func catalogKey(userID string) string {
	return "catalog:" + userID
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	key := catalogKey(actor.UserID)
	if cached, hit, err := s.catalog.Get(ctx, key); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("catalog cache read failed")
	}

	products, err := s.repo.ListProducts(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.catalog.Set(ctx, key, products, s.catalogTTL); err != nil {
		log.Warn().Err(err).Msg("catalog cache write failed")
	}

	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.GetProduct(ctx, actor.UserID, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 1 || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		UserID:      actor.UserID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		Active:      true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx, actor.UserID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, actor.UserID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx, actor.UserID)
	return *saved, nil
}

func (s *Service) invalidateCatalog(ctx context.Context, userID string) {
	if err := s.catalog.Invalidate(ctx, catalogKey(userID)); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, actor.UserID)
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.repo.GetCustomer(ctx, actor.UserID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return domain.Customer{}, store.ErrInvalidInput
	}

	customer := domain.Customer{
		UserID: actor.UserID,
		Name:   req.Name,
		Email:  req.Email,
		Phone:  strings.TrimSpace(req.Phone),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentPix, domain.PaymentTransfer:
		return true
	}
	return false
}

// RecordSale checks out a cart. Prices are snapshotted from the catalog at
// record time; client-sent unit prices are ignored. Amounts never reject an
// oversell: stock is clamped at zero by the store layer.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.TaxCents < 0 || req.DiscountCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, actor.UserID, req.CustomerID); err != nil {
			return domain.Sale{}, err
		}
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity < 1 {
			return domain.Sale{}, store.ErrInvalidInput
		}
		productIDs = append(productIDs, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, actor.UserID, productIDs)
	if err != nil {
		return domain.Sale{}, err
	}

	basket := cart.New()
	quantities := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Sale{}, fmt.Errorf("product %s unavailable: %w", line.ProductID, store.ErrNotFound)
		}
		basket.AddItem(product.ID, product.Name, product.PriceCents)
		quantities[product.ID] += line.Quantity
	}
	for id, qty := range quantities {
		basket.SetQuantity(id, qty)
	}

	items := make([]domain.SaleItem, 0, len(basket.Lines()))
	for _, line := range basket.Lines() {
		items = append(items, domain.SaleItem{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents(),
		})
	}

	sale := domain.Sale{
		UserID:        actor.UserID,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.SaleStatusCompleted,
		Notes:         strings.TrimSpace(req.Notes),
		SubtotalCents: basket.SubtotalCents(),
		TaxCents:      req.TaxCents,
		DiscountCents: req.DiscountCents,
		TotalCents:    basket.TotalCents(req.TaxCents, req.DiscountCents),
		Items:         items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateCatalog(ctx, actor.UserID)
	if s.metrics != nil {
		s.metrics.SalesRecorded.Inc()
	}
	log.Info().Str("sale_id", created.ID).Int64("total_cents", created.TotalCents).Msg("sale recorded")

	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSale(ctx, actor.UserID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListSales(ctx, actor.UserID, limit)
}

// RecentSales returns the five most recent sales for the dashboard strip.
func (s *Service) RecentSales(ctx context.Context) ([]domain.Sale, error) {
	return s.ListSales(ctx, 5)
}

// IssueInvoice issues an invoice for a sale. Issuance is idempotent per sale:
// when the sale already has an invoice the existing one is returned and the
// second return value is false.
func (s *Service) IssueInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, bool, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Invoice{}, false, err
	}

	if req.SaleID == "" {
		return domain.Invoice{}, false, store.ErrInvalidInput
	}

	if _, err := s.repo.GetSale(ctx, actor.UserID, req.SaleID); err != nil {
		return domain.Invoice{}, false, err
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := parseDueDate(req.DueDate)
		if err != nil {
			return domain.Invoice{}, false, store.ErrInvalidInput
		}
		dueDate = &parsed
	}

	inv := domain.Invoice{
		UserID:  actor.UserID,
		SaleID:  req.SaleID,
		Number:  invoice.NewNumber(time.Now().UTC()),
		Status:  domain.InvoiceStatusIssued,
		DueDate: dueDate,
	}

	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		if errors.Is(err, store.ErrInvoiceExists) {
			existing, getErr := s.repo.GetInvoiceBySale(ctx, actor.UserID, req.SaleID)
			if getErr != nil {
				return domain.Invoice{}, false, getErr
			}
			return *existing, false, nil
		}
		return domain.Invoice{}, false, err
	}

	if s.metrics != nil {
		s.metrics.InvoicesIssued.Inc()
	}
	log.Info().Str("invoice_id", created.ID).Str("number", created.Number).Msg("invoice issued")

	return *created, true, nil
}

func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (domain.InvoiceDetail, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	inv, err := s.repo.GetInvoice(ctx, actor.UserID, invoiceID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	sale, err := s.repo.GetSale(ctx, actor.UserID, inv.SaleID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}

	detail := domain.InvoiceDetail{Invoice: *inv, Sale: *sale}
	if sale.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, actor.UserID, sale.CustomerID)
		if err == nil {
			detail.Customer = customer
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.InvoiceDetail{}, err
		}
	}

	return detail, nil
}

func (s *Service) ListInvoices(ctx context.Context, limit int) ([]domain.Invoice, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListInvoices(ctx, actor.UserID, limit)
}

// CancelInvoice marks the invoice canceled. Transitions are not guarded: a
// canceled invoice can later be sent or paid again, matching how the billing
// screen has always behaved.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	return s.setInvoiceStatus(ctx, invoiceID, domain.InvoiceStatusCanceled, "")
}

func (s *Service) PayInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	return s.setInvoiceStatus(ctx, invoiceID, domain.InvoiceStatusPaid, "")
}

// SendInvoice marks the invoice sent to the given address. When the request
// omits an address, the email of the sale's customer is used. Delivery itself
// is out of scope here: the send is recorded and logged, nothing goes over
// the wire.
func (s *Service) SendInvoice(ctx context.Context, invoiceID string, req domain.InvoiceSendRequest) (domain.Invoice, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		fallback, err := s.customerEmailForInvoice(ctx, invoiceID)
		if err != nil {
			return domain.Invoice{}, err
		}
		req.Email = fallback
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	updated, err := s.setInvoiceStatus(ctx, invoiceID, domain.InvoiceStatusSent, req.Email)
	if err != nil {
		return domain.Invoice{}, err
	}

	log.Info().Str("invoice_id", updated.ID).Str("email", req.Email).Msg("invoice send recorded")
	return updated, nil
}

func (s *Service) customerEmailForInvoice(ctx context.Context, invoiceID string) (string, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return "", err
	}

	inv, err := s.repo.GetInvoice(ctx, actor.UserID, invoiceID)
	if err != nil {
		return "", err
	}
	sale, err := s.repo.GetSale(ctx, actor.UserID, inv.SaleID)
	if err != nil {
		return "", err
	}
	if sale.CustomerID == "" {
		return "", nil
	}
	customer, err := s.repo.GetCustomer(ctx, actor.UserID, sale.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(customer.Email), nil
}

func (s *Service) setInvoiceStatus(ctx context.Context, invoiceID string, status string, email string) (domain.Invoice, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}

	updated, err := s.repo.UpdateInvoiceStatus(ctx, actor.UserID, invoiceID, status, email)
	if err != nil {
		return domain.Invoice{}, err
	}

	if s.metrics != nil {
		s.metrics.InvoicesUpdated.WithLabelValues(status).Inc()
	}

	return *updated, nil
}

func (s *Service) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return s.repo.GetDashboardSummary(ctx, actor.UserID)
}

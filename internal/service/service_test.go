package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"gestor/backend/internal/cache"
	"gestor/backend/internal/domain"
	"gestor/backend/internal/store"
	"gestor/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopCatalogCache{}, nil, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID:   "user-admin",
		Username: "admin",
	})
}

func TestRecordSaleRequiresActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if !errors.Is(err, ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
}

func TestRecordSaleComputesTotals(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	a, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Produto A", PriceCents: 1000, Stock: 10})
	if err != nil {
		t.Fatalf("create product A failed: %v", err)
	}
	b, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Produto B", PriceCents: 550, Stock: 10})
	if err != nil {
		t.Fatalf("create product B failed: %v", err)
	}

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		TaxCents:      100,
		Items: []domain.SaleLineRequest{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	if sale.SubtotalCents != 2550 {
		t.Fatalf("expected subtotal 2550, got %d", sale.SubtotalCents)
	}
	if sale.TotalCents != 2650 {
		t.Fatalf("expected total 2650, got %d", sale.TotalCents)
	}
	if len(sale.Items) != 2 {
		t.Fatalf("expected 2 sale items, got %d", len(sale.Items))
	}
}

func TestRecordSaleSnapshotsCatalogPrices(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Produto", PriceCents: 900, Stock: 5})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	// The client-sent unit price must be ignored.
	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items: []domain.SaleLineRequest{
			{ProductID: p.ID, Quantity: 1, UnitPriceCents: 1},
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if sale.Items[0].UnitPriceCents != 900 {
		t.Fatalf("expected snapshotted price 900, got %d", sale.Items[0].UnitPriceCents)
	}
}

func TestRecordSaleClampsStockAtZero(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Quase Esgotado", PriceCents: 500, Stock: 3})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: p.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	after, err := svc.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 0 {
		t.Fatalf("expected stock clamped at 0, got %d", after.Stock)
	}
}

func TestRecordSaleAllowsNegativeTotal(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Barato", PriceCents: 100, Stock: 5})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		DiscountCents: 500,
		Items:         []domain.SaleLineRequest{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if sale.TotalCents != -400 {
		t.Fatalf("expected total -400, got %d", sale.TotalCents)
	}
}

func TestRecordSaleMergesDuplicateLines(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Duplicado", PriceCents: 200, Stock: 20})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items: []domain.SaleLineRequest{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected merged single line, got %d", len(sale.Items))
	}
	if sale.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", sale.Items[0].Quantity)
	}
}

func TestRecordSaleRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(adminCtx(), domain.SaleCreateRequest{
		PaymentMethod: "barter",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecordSaleRejectsEmptyCart(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(adminCtx(), domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty cart, got %v", err)
	}
}

func TestRecentSalesCappedAtFive(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	for i := 0; i < 7; i++ {
		_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
			PaymentMethod: "cash",
			Items:         []domain.SaleLineRequest{{ProductID: "prod-leite-01", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("record sale %d failed: %v", i, err)
		}
	}

	recent, err := svc.RecentSales(ctx)
	if err != nil {
		t.Fatalf("recent sales failed: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent sales, got %d", len(recent))
	}
}

var invoiceNumberPattern = regexp.MustCompile(`^NF-\d{4}-[A-Z0-9]{8}$`)

func TestIssueInvoiceIsIdempotentPerSale(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	first, created, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first issue to create an invoice")
	}
	if !invoiceNumberPattern.MatchString(first.Number) {
		t.Fatalf("invoice number %q does not match expected format", first.Number)
	}
	if first.Status != domain.InvoiceStatusIssued {
		t.Fatalf("expected status issued, got %s", first.Status)
	}

	second, created, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("second issue failed: %v", err)
	}
	if created {
		t.Fatalf("expected second issue to return the existing invoice")
	}
	if second.ID != first.ID || second.Number != first.Number {
		t.Fatalf("expected same invoice back, got %s vs %s", second.ID, first.ID)
	}
}

func TestIssueInvoiceUnknownSale(t *testing.T) {
	svc := newTestService()

	_, _, err := svc.IssueInvoice(adminCtx(), domain.InvoiceCreateRequest{SaleID: "sale-missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvoiceNotVisibleToOtherUsers(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	inv, _, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{UserID: "user-other", Username: "other"})
	if _, err := svc.GetInvoice(otherCtx, inv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign invoice, got %v", err)
	}
}

func TestInvoiceLifecycleTransitionsAreUnguarded(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	inv, _, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	canceled, err := svc.CancelInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != domain.InvoiceStatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}

	// A canceled invoice can still be sent; no transition ordering exists.
	sent, err := svc.SendInvoice(ctx, inv.ID, domain.InvoiceSendRequest{Email: "cliente@example.com"})
	if err != nil {
		t.Fatalf("send after cancel failed: %v", err)
	}
	if sent.Status != domain.InvoiceStatusSent {
		t.Fatalf("expected sent, got %s", sent.Status)
	}
	if sent.Email != "cliente@example.com" {
		t.Fatalf("expected recorded email, got %q", sent.Email)
	}

	paid, err := svc.PayInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}
}

func TestSendInvoiceDefaultsToCustomerEmail(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "cust-maria-01",
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	inv, _, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	sent, err := svc.SendInvoice(ctx, inv.ID, domain.InvoiceSendRequest{})
	if err != nil {
		t.Fatalf("send without email failed: %v", err)
	}
	if sent.Email != "maria@example.com" {
		t.Fatalf("expected customer email fallback, got %q", sent.Email)
	}
}

func TestSendInvoiceRejectsBadEmail(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	inv, _, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := svc.SendInvoice(ctx, inv.ID, domain.InvoiceSendRequest{Email: "not-an-email"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateProductPatchSemantics(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Original", Description: "desc", PriceCents: 1000, Stock: 4})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	newPrice := int64(1200)
	updated, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PriceCents != 1200 {
		t.Fatalf("expected price 1200, got %d", updated.PriceCents)
	}
	if updated.Name != "Original" || updated.Stock != 4 {
		t.Fatalf("patch must not touch omitted fields: %+v", updated)
	}
}

func TestDashboardSummaryCounts(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		PaymentMethod: "cash",
		Items:         []domain.SaleLineRequest{{ProductID: "prod-cafe-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if _, _, err := svc.IssueInvoice(ctx, domain.InvoiceCreateRequest{SaleID: sale.ID}); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	summary, err := svc.DashboardSummary(ctx)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Sales != 1 {
		t.Fatalf("expected 1 sale, got %d", summary.Sales)
	}
	if summary.RevenueCents != sale.TotalCents {
		t.Fatalf("expected revenue %d, got %d", sale.TotalCents, summary.RevenueCents)
	}
	if summary.InvoicesIssued != 1 {
		t.Fatalf("expected 1 invoice, got %d", summary.InvoicesIssued)
	}
	if summary.Customers != 3 {
		t.Fatalf("expected 3 seeded customers, got %d", summary.Customers)
	}
}

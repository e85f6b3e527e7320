package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"meunegocio/backend/internal/cache"
	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/store"
	"meunegocio/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, context.Context) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopSummaryCache{})
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-test", TenantID: "tenant-demo", Role: "admin"})
	return svc, repo, ctx
}

func TestOperationsRequireActor(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.ListProducts(context.Background()); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.ProcessSale(context.Background(), domain.SaleRequest{}); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestProcessSaleCashIsImmediate(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ProductID: "prd-shampoo-01", Qty: 2}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if resp.Sale.TotalCents != 6800 {
		t.Fatalf("total = %d, want 6800", resp.Sale.TotalCents)
	}

	var income, cmv *domain.Transaction
	for i := range resp.Transactions {
		tx := &resp.Transactions[i]
		switch tx.Kind {
		case domain.TxKindIncome:
			income = tx
		case domain.TxKindExpense:
			cmv = tx
		}
	}
	if income == nil || income.Status != domain.TxStatusPaid || income.AmountCents != 6800 {
		t.Fatalf("bad income entry: %+v", income)
	}
	if income.PaidAt == nil {
		t.Fatal("cash income should carry paid_at")
	}
	if cmv == nil || cmv.Status != domain.TxStatusPaid || cmv.AmountCents != 3400 {
		t.Fatalf("bad cost entry: %+v", cmv)
	}

	product, err := repo.GetProductByID(ctx, "tenant-demo", "prd-shampoo-01")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.StockQty != 58 {
		t.Fatalf("stock = %d, want 58", product.StockQty)
	}
}

func TestProcessSaleCreditInstallmentsThroughMachine(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Date:          "2026-03-01",
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1, UnitPriceCents: 10000}},
		PaymentMethod: domain.MethodCredito,
		Installments:  3,
		CardMachineID: "mch-stone-01",
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var incomes []domain.Transaction
	for _, tx := range resp.Transactions {
		if tx.Kind == domain.TxKindIncome {
			incomes = append(incomes, tx)
		}
	}
	if len(incomes) != 3 {
		t.Fatalf("income entries = %d, want 3", len(incomes))
	}
	saleDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, tx := range incomes {
		if tx.AmountCents != 3167 {
			t.Fatalf("entry %d amount = %d, want 3167", i+1, tx.AmountCents)
		}
		if tx.Status != domain.TxStatusPending {
			t.Fatalf("entry %d status = %s, want pending", i+1, tx.Status)
		}
		if tx.FeeApplied != 0.05 {
			t.Fatalf("entry %d fee = %v, want 0.05", i+1, tx.FeeApplied)
		}
		wantDue := saleDate.AddDate(0, 0, (i+1)*5)
		if !tx.DueDate.Equal(wantDue) {
			t.Fatalf("entry %d due = %v, want %v", i+1, tx.DueDate, wantDue)
		}
	}
}

func TestProcessSaleMachineWithoutRateRowUsesMachineDefaults(t *testing.T) {
	svc, _, ctx := newTestService(t)

	// The seeded machine carries no VOUCHER rate row; the leg still settles
	// through the machine with fee 0 on its default one-day delay.
	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Date:          "2026-03-01",
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1, UnitPriceCents: 10000}},
		PaymentMethod: domain.MethodVoucher,
		CardMachineID: "mch-stone-01",
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var incomes []domain.Transaction
	for _, tx := range resp.Transactions {
		if tx.Kind == domain.TxKindIncome {
			incomes = append(incomes, tx)
		}
	}
	if len(incomes) != 1 {
		t.Fatalf("income entries = %d, want 1", len(incomes))
	}
	entry := incomes[0]
	if entry.Status != domain.TxStatusPending {
		t.Fatalf("status = %s, want pending", entry.Status)
	}
	if entry.AmountCents != 10000 {
		t.Fatalf("amount = %d, want 10000", entry.AmountCents)
	}
	if entry.FeeApplied != 0 {
		t.Fatalf("fee = %v, want 0", entry.FeeApplied)
	}
	wantDue := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !entry.DueDate.Equal(wantDue) {
		t.Fatalf("due = %v, want %v", entry.DueDate, wantDue)
	}
}

func TestProcessSaleCarneIgnoresMachine(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Date:          "2026-03-01",
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-tosa-01", Qty: 1, UnitPriceCents: 10000}},
		PaymentMethod: domain.MethodCarne,
		Installments:  4,
		CardMachineID: "mch-stone-01",
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var incomes []domain.Transaction
	for _, tx := range resp.Transactions {
		if tx.Kind == domain.TxKindIncome {
			incomes = append(incomes, tx)
		}
	}
	if len(incomes) != 4 {
		t.Fatalf("income entries = %d, want 4", len(incomes))
	}
	saleDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, tx := range incomes {
		if tx.AmountCents != 2500 || tx.FeeApplied != 0 {
			t.Fatalf("entry %d = %d fee %v, want 2500 fee 0", i+1, tx.AmountCents, tx.FeeApplied)
		}
		wantDue := saleDate.AddDate(0, 0, (i+1)*30)
		if !tx.DueDate.Equal(wantDue) {
			t.Fatalf("entry %d due = %v, want %v", i+1, tx.DueDate, wantDue)
		}
	}
}

func TestProcessSaleSplitPaymentsMustMatchTotal(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		Payments: []domain.PaymentEntry{
			{Method: domain.MethodPix, AmountCents: 3000},
			{Method: domain.MethodDinheiro, AmountCents: 2000},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessSaleSplitPayments(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		Payments: []domain.PaymentEntry{
			{Method: domain.MethodDinheiro, AmountCents: 2000},
			{Method: domain.MethodPix, AmountCents: 4000, CardMachineID: "mch-stone-01"},
		},
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var cash, pix *domain.Transaction
	for i := range resp.Transactions {
		tx := &resp.Transactions[i]
		switch tx.PaymentMethod {
		case domain.MethodDinheiro:
			cash = tx
		case domain.MethodPix:
			pix = tx
		}
	}
	if cash == nil || cash.Status != domain.TxStatusPaid || cash.AmountCents != 2000 {
		t.Fatalf("bad cash leg: %+v", cash)
	}
	if pix == nil || pix.Status != domain.TxStatusPending || pix.AmountCents != 3964 {
		t.Fatalf("bad pix leg: %+v", pix)
	}
}

func TestProcessSaleFreightByCustomerRaisesTotal(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
		FreightCents:  1500,
		FreightPaidBy: domain.FreightPaidByCliente,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if resp.Sale.TotalCents != 7500 {
		t.Fatalf("total = %d, want 7500", resp.Sale.TotalCents)
	}
}

func TestProcessSaleFreightByCompanyBooksExpense(t *testing.T) {
	svc, _, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
		FreightCents:  1500,
		FreightPaidBy: domain.FreightPaidByEmpresa,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if resp.Sale.TotalCents != 6000 {
		t.Fatalf("total = %d, want 6000", resp.Sale.TotalCents)
	}

	var freight *domain.Transaction
	for i := range resp.Transactions {
		tx := &resp.Transactions[i]
		if tx.Kind == domain.TxKindExpense && tx.AmountCents == 1500 {
			freight = tx
		}
	}
	if freight == nil || freight.Status != domain.TxStatusPaid {
		t.Fatalf("bad freight entry: %+v", freight)
	}
}

func TestProcessSaleInsufficientStock(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ProductID: "prd-coleira-01", Qty: 999}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ProductID: "prd-coleira-01", Qty: 5}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}
	if err := svc.DeleteSale(ctx, resp.Sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}

	product, err := repo.GetProductByID(ctx, "tenant-demo", "prd-coleira-01")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.StockQty != 25 {
		t.Fatalf("stock = %d, want 25", product.StockQty)
	}
	if _, err := repo.GetSaleByID(ctx, "tenant-demo", resp.Sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProcessSaleCollapsesAgendaEvent(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	event, err := svc.CreateAgendaEvent(ctx, domain.AgendaEventCreateRequest{
		Title:      "Banho da Mel",
		CustomerID: "cus-ana-01",
		ServiceIDs: []string{"svc-banho-01"},
		StartsAt:   "2026-03-10",
	})
	if err != nil {
		t.Fatalf("CreateAgendaEvent: %v", err)
	}

	if _, err := svc.ProcessSale(ctx, domain.SaleRequest{
		CustomerID:    "cus-ana-01",
		EventID:       event.ID,
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
	}); err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	saved, err := repo.GetAgendaEventByID(ctx, "tenant-demo", event.ID)
	if err != nil {
		t.Fatalf("GetAgendaEventByID: %v", err)
	}
	if saved.AttendanceStatus != domain.AttendanceCompleted || saved.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("event not collapsed: %+v", saved)
	}

	if _, err := repo.FindPendingIncomeByEvent(ctx, "tenant-demo", event.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("forecast entry should be gone, got %v", err)
	}

	notification, err := repo.GetNotificationByEventKey(ctx, "tenant-demo", event.ID)
	if err != nil {
		t.Fatalf("GetNotificationByEventKey: %v", err)
	}
	if notification.Status != domain.NotificationActedPDV {
		t.Fatalf("notification status = %s, want %s", notification.Status, domain.NotificationActedPDV)
	}
	if notification.ActionAmountCents != 6000 {
		t.Fatalf("action amount = %d, want 6000", notification.ActionAmountCents)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, ctx := newTestService(t)

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "   "}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Osso", PriceCents: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative price, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Osso", ProductType: "VIRTUAL"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad type, got %v", err)
	}

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "  Osso de Couro  ", PriceCents: 1200, ManagesStock: true, InitialStock: 10})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if created.Name != "Osso de Couro" || created.ProductType != domain.ProductTypeRevenda || !created.Active {
		t.Fatalf("unexpected product: %+v", created)
	}
}

func TestUpdateTransactionMarksPaid(t *testing.T) {
	svc, _, ctx := newTestService(t)

	created, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Kind:        domain.TxKindExpense,
		Description: "Aluguel",
		AmountCents: 250000,
		DueDate:     "2026-03-05",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.Status != domain.TxStatusPending || created.PaidAt != nil {
		t.Fatalf("unexpected created tx: %+v", created)
	}

	paid := domain.TxStatusPaid
	updated, err := svc.UpdateTransaction(ctx, created.ID, domain.TransactionUpdateRequest{Status: &paid})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.Status != domain.TxStatusPaid || updated.PaidAt == nil {
		t.Fatalf("tx not marked paid: %+v", updated)
	}
}

func TestReceivePurchaseInvoice(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "PetFood Distribuidora"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	invoice, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		SupplierID: supplier.ID,
		Number:     "NF-1042",
		Items:      []domain.PurchaseInvoiceItem{{ProductID: "prd-racao-01", Qty: 10, CostCents: 12000}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if invoice.TotalCents != 120000 || invoice.Status != domain.InvoiceStatusOpen {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}

	received, err := svc.ReceivePurchaseInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("ReceivePurchaseInvoice: %v", err)
	}
	if received.Status != domain.InvoiceStatusReceived || received.ReceivedAt == nil {
		t.Fatalf("invoice not received: %+v", received)
	}

	product, err := repo.GetProductByID(ctx, "tenant-demo", "prd-racao-01")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.StockQty != 50 {
		t.Fatalf("stock = %d, want 50", product.StockQty)
	}
	if product.AvgCostCents != 12000 {
		t.Fatalf("cost = %d, want 12000", product.AvgCostCents)
	}

	review, err := repo.GetNotificationByEventKey(ctx, "tenant-demo", "invoice_"+invoice.ID)
	if err != nil {
		t.Fatalf("payment review notification missing: %v", err)
	}
	if review.Type != domain.NotificationTypePaymentReview || review.Status != domain.NotificationPending {
		t.Fatalf("unexpected review notification: %+v", review)
	}

	if _, err := svc.ReceivePurchaseInvoice(ctx, invoice.ID); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on double receive, got %v", err)
	}
}

func TestReceivePurchaseInvoiceFlagsUnpricedProducts(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Fornecedor Novo"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:         "Petisco importado",
		ManagesStock: true,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	invoice, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		SupplierID: supplier.ID,
		Number:     "NF-2001",
		Items:      []domain.PurchaseInvoiceItem{{ProductID: product.ID, Qty: 5, CostCents: 4000}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if _, err := svc.ReceivePurchaseInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("ReceivePurchaseInvoice: %v", err)
	}

	pricing, err := repo.GetNotificationByEventKey(ctx, "tenant-demo", "pricing_"+invoice.ID)
	if err != nil {
		t.Fatalf("pricing notification missing: %v", err)
	}
	if pricing.Type != domain.NotificationTypePricingNeeded {
		t.Fatalf("notification type = %s, want %s", pricing.Type, domain.NotificationTypePricingNeeded)
	}
}

func TestReceivePurchaseInvoicePricedProductNeedsNoPricing(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Fornecedor Caro"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	// Cost above the shampoo's 3400 price; margin is the owner's problem,
	// a priced product raises no pricing notification.
	invoice, err := svc.CreatePurchaseInvoice(ctx, domain.PurchaseInvoiceCreateRequest{
		SupplierID: supplier.ID,
		Number:     "NF-2002",
		Items:      []domain.PurchaseInvoiceItem{{ProductID: "prd-shampoo-01", Qty: 5, CostCents: 4000}},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseInvoice: %v", err)
	}
	if _, err := svc.ReceivePurchaseInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("ReceivePurchaseInvoice: %v", err)
	}

	if _, err := repo.GetNotificationByEventKey(ctx, "tenant-demo", "pricing_"+invoice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no pricing notification, got err=%v", err)
	}
}

func TestSaleReusesExistingSalesCategory(t *testing.T) {
	svc, repo, ctx := newTestService(t)

	// The tenant already made its own "vendas" category by hand.
	existing, err := repo.CreateCategory(ctx, domain.Category{
		TenantID: "tenant-demo",
		Name:     "vendas",
		Kind:     domain.TxKindIncome,
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	resp, err := svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{ServiceID: "svc-banho-01", Qty: 1}},
		PaymentMethod: domain.MethodDinheiro,
	})
	if err != nil {
		t.Fatalf("ProcessSale: %v", err)
	}

	var income *domain.Transaction
	for i := range resp.Transactions {
		if resp.Transactions[i].Kind == domain.TxKindIncome {
			income = &resp.Transactions[i]
		}
	}
	if income == nil {
		t.Fatal("sale booked no income entry")
	}
	if income.CategoryID != existing.ID {
		t.Fatalf("category = %s, want the pre-existing %s", income.CategoryID, existing.ID)
	}

	claimed, err := repo.FindOrCreateCategory(ctx, "tenant-demo", domain.CategoryCodeVendas, "Vendas", domain.TxKindIncome)
	if err != nil {
		t.Fatalf("FindOrCreateCategory: %v", err)
	}
	if claimed.ID != existing.ID {
		t.Fatalf("reserved code landed on %s, want %s", claimed.ID, existing.ID)
	}
}

func TestApproveQuote(t *testing.T) {
	svc, _, ctx := newTestService(t)

	quote, err := svc.CreateQuote(ctx, domain.QuoteCreateRequest{
		CustomerID: "cus-bruno-01",
		Items:      []domain.QuoteItem{{Description: "Pacote banho mensal", Qty: 4, PriceCents: 5500}},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if quote.Status != domain.QuoteDraft || quote.TotalCents != 22000 {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	approved, err := svc.ApproveQuote(ctx, quote.ID)
	if err != nil {
		t.Fatalf("ApproveQuote: %v", err)
	}
	if approved.Status != domain.QuoteApproved {
		t.Fatalf("status = %s, want %s", approved.Status, domain.QuoteApproved)
	}
}

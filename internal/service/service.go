package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"meunegocio/backend/internal/cache"
	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/settlement"
	"meunegocio/backend/internal/store"
	"meunegocio/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	summaries  cache.SummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: 30 * time.Second,
	}
}

// SetSummaryTTL overrides how long cached daily summaries stay fresh.
func (s *Service) SetSummaryTTL(ttl time.Duration) {
	if ttl > 0 {
		s.summaryTTL = ttl
	}
}

// tenantFrom resolves the tenant from the request actor. Every operation
// starts here; a request without tenant context touches nothing.
func (s *Service) tenantFrom(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID == "" {
		return domain.Actor{}, store.ErrUnauthorized
	}
	return actor, nil
}

func (s *Service) invalidateViews(ctx context.Context, tenantID string, paths ...string) {
	if err := s.summaries.Invalidate(ctx, tenantID, paths...); err != nil {
		log.Printf("[service] WARN: failed to invalidate views tenant=%s: %v", tenantID, err)
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.TenantID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}
	if req.PriceCents < 0 || req.AvgCostCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: negative amounts", store.ErrInvalidInput)
	}
	if req.ProductType == "" {
		req.ProductType = domain.ProductTypeRevenda
	}
	if req.ProductType != domain.ProductTypeRevenda && req.ProductType != domain.ProductTypeInterno {
		return domain.Product{}, fmt.Errorf("%w: unknown product type %q", store.ErrInvalidInput, req.ProductType)
	}

	product := domain.Product{
		TenantID:     actor.TenantID,
		Name:         req.Name,
		ProductType:  req.ProductType,
		PriceCents:   req.PriceCents,
		AvgCostCents: req.AvgCostCents,
		ManagesStock: req.ManagesStock,
		StockQty:     req.InitialStock,
		Active:       true,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: negative price", store.ErrInvalidInput)
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.AvgCostCents != nil {
		if *req.AvgCostCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: negative cost", store.ErrInvalidInput)
		}
		updated.AvgCostCents = *req.AvgCostCents
	}
	if req.ManagesStock != nil {
		updated.ManagesStock = *req.ManagesStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, actor.TenantID)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Service{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 0 {
		return domain.Service{}, fmt.Errorf("%w: service needs a name and non-negative price", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateService(ctx, domain.Service{
		TenantID:   actor.TenantID,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Active:     true,
	})
	if err != nil {
		return domain.Service{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, actor.TenantID)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: customer name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		TenantID: actor.TenantID,
		Name:     req.Name,
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, actor.TenantID)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		TenantID: actor.TenantID,
		Name:     req.Name,
		Phone:    strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListQuotes(ctx context.Context) ([]domain.Quote, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListQuotes(ctx, actor.TenantID)
}

func (s *Service) CreateQuote(ctx context.Context, req domain.QuoteCreateRequest) (domain.Quote, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	if len(req.Items) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: quote needs at least one item", store.ErrInvalidInput)
	}

	var total int64
	for _, item := range req.Items {
		if item.Qty < 1 || item.PriceCents < 0 {
			return domain.Quote{}, fmt.Errorf("%w: bad quote item", store.ErrInvalidInput)
		}
		total += int64(item.Qty) * item.PriceCents
	}

	created, err := s.repo.CreateQuote(ctx, domain.Quote{
		TenantID:   actor.TenantID,
		CustomerID: req.CustomerID,
		Status:     domain.QuoteDraft,
		TotalCents: total,
		Items:      req.Items,
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return *created, nil
}

func (s *Service) ApproveQuote(ctx context.Context, id string) (domain.Quote, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	updated, err := s.repo.UpdateQuoteStatus(ctx, actor.TenantID, id, domain.QuoteApproved)
	if err != nil {
		return domain.Quote{}, err
	}
	return *updated, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, actor.TenantID)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Category{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: category name is required", store.ErrInvalidInput)
	}
	if req.Kind != domain.TxKindIncome && req.Kind != domain.TxKindExpense {
		return domain.Category{}, fmt.Errorf("%w: category kind must be income or expense", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		TenantID: actor.TenantID,
		Name:     req.Name,
		Kind:     req.Kind,
		Color:    req.Color,
	})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) ListCardMachines(ctx context.Context) ([]domain.CardMachine, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCardMachines(ctx, actor.TenantID)
}

func (s *Service) CreateCardMachine(ctx context.Context, req domain.CardMachineCreateRequest) (domain.CardMachine, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.CardMachine{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.CardMachine{}, fmt.Errorf("%w: machine name is required", store.ErrInvalidInput)
	}
	if req.SettlementDays < 0 {
		return domain.CardMachine{}, fmt.Errorf("%w: settlement days must not be negative", store.ErrInvalidInput)
	}
	if req.SettlementMode != "" && req.SettlementMode != domain.SettlementParcelado && req.SettlementMode != domain.SettlementAntecipado {
		return domain.CardMachine{}, fmt.Errorf("%w: unknown settlement mode %q", store.ErrInvalidInput, req.SettlementMode)
	}
	for _, rate := range req.Rates {
		if rate.MethodCode == "" || rate.FeeFraction < 0 || rate.FeeFraction >= 1 || rate.SettlementDays < 0 {
			return domain.CardMachine{}, fmt.Errorf("%w: bad rate row for %q", store.ErrInvalidInput, rate.MethodCode)
		}
		if rate.SettlementMode != "" && rate.SettlementMode != domain.SettlementParcelado && rate.SettlementMode != domain.SettlementAntecipado {
			return domain.CardMachine{}, fmt.Errorf("%w: unknown settlement mode %q", store.ErrInvalidInput, rate.SettlementMode)
		}
	}

	created, err := s.repo.CreateCardMachine(ctx, domain.CardMachine{
		TenantID:       actor.TenantID,
		Name:           req.Name,
		SettlementDays: req.SettlementDays,
		SettlementMode: req.SettlementMode,
		Rates:          req.Rates,
		Active:         true,
	})
	if err != nil {
		return domain.CardMachine{}, err
	}
	return *created, nil
}

func (s *Service) ListFinancialAccounts(ctx context.Context) ([]domain.FinancialAccount, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListFinancialAccounts(ctx, actor.TenantID)
}

var validMethods = map[string]bool{
	domain.MethodDinheiro: true,
	domain.MethodCheque:   true,
	domain.MethodCredito:  true,
	domain.MethodDebito:   true,
	domain.MethodPix:      true,
	domain.MethodVoucher:  true,
	domain.MethodCarne:    true,
	domain.MethodBoleto:   true,
}

// normalizePayments folds the legacy single-method fields and the payment
// array into one shape. When the array is present the legacy fields are
// ignored and the legs must add up to the customer total.
func normalizePayments(req domain.SaleRequest, customerTotal int64) ([]domain.PaymentEntry, error) {
	if len(req.Payments) > 0 {
		var sum int64
		payments := make([]domain.PaymentEntry, 0, len(req.Payments))
		for _, p := range req.Payments {
			p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
			if !validMethods[p.Method] {
				return nil, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, p.Method)
			}
			if p.AmountCents <= 0 {
				return nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
			}
			if p.Installments < 0 {
				return nil, fmt.Errorf("%w: negative installments", store.ErrInvalidInput)
			}
			sum += p.AmountCents
			payments = append(payments, p)
		}
		if sum != customerTotal {
			return nil, fmt.Errorf("%w: payments add to %d, sale total is %d", store.ErrInvalidInput, sum, customerTotal)
		}
		return payments, nil
	}

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.MethodDinheiro
	}
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, method)
	}
	return []domain.PaymentEntry{{
		Method:        method,
		AmountCents:   customerTotal,
		Installments:  req.Installments,
		CardMachineID: req.CardMachineID,
		AccountID:     req.AccountID,
	}}, nil
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidInput, raw)
	}
	return t.UTC(), nil
}

// ProcessSale turns a sale request into the sale row, its receivable
// schedule, cost-of-goods entries and freight entries, all committed in one
// store call. Agenda collapse runs after commit and never fails the sale.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: sale needs at least one item", store.ErrInvalidInput)
	}

	saleDate, err := parseDate(req.Date, time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if req.FreightCents < 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: negative freight", store.ErrInvalidInput)
	}
	if req.FreightCents > 0 && req.FreightPaidBy != domain.FreightPaidByCliente && req.FreightPaidBy != domain.FreightPaidByEmpresa {
		return domain.SaleResponse{}, fmt.Errorf("%w: freight needs a payer", store.ErrInvalidInput)
	}

	items, itemsTotal, stockDecrements, err := s.resolveSaleItems(ctx, actor.TenantID, req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	customerTotal := itemsTotal
	if req.FreightCents > 0 && req.FreightPaidBy == domain.FreightPaidByCliente {
		customerTotal += req.FreightCents
	}

	payments, err := normalizePayments(req, customerTotal)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	salesCategory, err := s.repo.FindOrCreateCategory(ctx, actor.TenantID, domain.CategoryCodeVendas, "Vendas", domain.TxKindIncome)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	defaultAccountID := ""
	if account, err := s.repo.GetDefaultFinancialAccount(ctx, actor.TenantID); err == nil {
		defaultAccountID = account.ID
	}

	saleCode := xid.Short("VD-")
	sale := domain.Sale{
		TenantID:             actor.TenantID,
		Code:                 saleCode,
		CustomerID:           req.CustomerID,
		CarrierID:            req.CarrierID,
		EventID:              req.EventID,
		TotalCents:           customerTotal,
		FreightCents:         req.FreightCents,
		FreightPaidBy:        req.FreightPaidBy,
		FreightPaymentStatus: req.FreightPaymentStatus,
		Status:               domain.SaleStatusCompleted,
		Date:                 saleDate,
		Items:                items,
	}

	transactions := make([]domain.Transaction, 0, 4)
	for _, payment := range payments {
		entries, err := s.schedulePayment(ctx, actor.TenantID, payment, saleDate)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		accountID := payment.AccountID
		if accountID == "" {
			accountID = defaultAccountID
		}
		for _, entry := range entries {
			description := fmt.Sprintf("Venda %s - %s", saleCode, payment.Method)
			if entry.InstallmentTotal > 1 {
				description = fmt.Sprintf("%s (%d/%d)", description, entry.InstallmentNumber, entry.InstallmentTotal)
			}
			tx := domain.Transaction{
				TenantID:          actor.TenantID,
				Kind:              domain.TxKindIncome,
				Status:            entry.Status,
				Description:       description,
				AmountCents:       entry.AmountCents,
				FeeApplied:        entry.FeeApplied,
				InstallmentNumber: entry.InstallmentNumber,
				InstallmentTotal:  entry.InstallmentTotal,
				PaymentMethod:     payment.Method,
				CategoryID:        salesCategory.ID,
				CustomerID:        req.CustomerID,
				AccountID:         accountID,
				CardMachineID:     payment.CardMachineID,
				Date:              saleDate,
				DueDate:           entry.DueDate,
			}
			if entry.Status == domain.TxStatusPaid {
				paidAt := saleDate
				tx.PaidAt = &paidAt
			}
			transactions = append(transactions, tx)
		}
	}

	cmvEntries, err := s.costOfGoodsEntries(ctx, actor.TenantID, items, saleCode, saleDate, defaultAccountID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	transactions = append(transactions, cmvEntries...)

	if req.FreightCents > 0 && req.FreightPaidBy == domain.FreightPaidByEmpresa {
		freightCategory, err := s.repo.FindOrCreateCategory(ctx, actor.TenantID, domain.CategoryCodeFretes, "Fretes", domain.TxKindExpense)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		status := domain.TxStatusPaid
		if req.FreightPaymentStatus == domain.PaymentStatusPending {
			status = domain.TxStatusPending
		}
		freightTx := domain.Transaction{
			TenantID:    actor.TenantID,
			Kind:        domain.TxKindExpense,
			Status:      status,
			Description: fmt.Sprintf("Frete venda %s", saleCode),
			AmountCents: req.FreightCents,
			CategoryID:  freightCategory.ID,
			AccountID:   defaultAccountID,
			Date:        saleDate,
			DueDate:     saleDate,
		}
		if status == domain.TxStatusPaid {
			paidAt := saleDate
			freightTx.PaidAt = &paidAt
		}
		transactions = append(transactions, freightTx)
	}

	createdSale, createdTxs, err := s.repo.CreateSale(ctx, store.SaleBundle{
		Sale:            sale,
		Transactions:    transactions,
		StockDecrements: stockDecrements,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if req.EventID != "" {
		s.collapseAgendaEvent(ctx, actor.TenantID, req.EventID, customerTotal)
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "financeiro", "vendas")

	return domain.SaleResponse{Sale: *createdSale, Transactions: createdTxs}, nil
}

func (s *Service) resolveSaleItems(ctx context.Context, tenantID string, reqItems []domain.SaleItemRequest) ([]domain.SaleItem, int64, map[string]int, error) {
	items := make([]domain.SaleItem, 0, len(reqItems))
	decrements := make(map[string]int)
	var total int64

	for _, line := range reqItems {
		if line.Qty < 1 {
			return nil, 0, nil, fmt.Errorf("%w: item qty must be at least 1", store.ErrInvalidInput)
		}
		item := domain.SaleItem{
			ProductID:      line.ProductID,
			ServiceID:      line.ServiceID,
			Description:    strings.TrimSpace(line.Description),
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
		}

		switch {
		case line.ProductID != "":
			product, err := s.repo.GetProductByID(ctx, tenantID, line.ProductID)
			if err != nil {
				return nil, 0, nil, err
			}
			if item.Description == "" {
				item.Description = product.Name
			}
			if item.UnitPriceCents == 0 {
				item.UnitPriceCents = product.PriceCents
			}
			item.UnitCostCents = product.AvgCostCents
			if product.ManagesStock {
				decrements[product.ID] += line.Qty
			}
		case line.ServiceID != "":
			svc, err := s.repo.GetServiceByID(ctx, tenantID, line.ServiceID)
			if err != nil {
				return nil, 0, nil, err
			}
			if item.Description == "" {
				item.Description = svc.Name
			}
			if item.UnitPriceCents == 0 {
				item.UnitPriceCents = svc.PriceCents
			}
		default:
			if item.Description == "" {
				return nil, 0, nil, fmt.Errorf("%w: free-form item needs a description", store.ErrInvalidInput)
			}
		}

		if item.UnitPriceCents < 0 {
			return nil, 0, nil, fmt.Errorf("%w: negative item price", store.ErrInvalidInput)
		}
		total += int64(item.Qty) * item.UnitPriceCents
		items = append(items, item)
	}

	return items, total, decrements, nil
}

// schedulePayment resolves machine and fee for one payment leg and runs the
// settlement schedule. A machine counts whenever the method resolves to a
// fee code; a missing rate row means fee 0 with the machine's default delay
// and mode. Carne or boleto legs never resolve a code and keep the default
// thirty-day ladder even with a machine attached.
func (s *Service) schedulePayment(ctx context.Context, tenantID string, payment domain.PaymentEntry, saleDate time.Time) ([]settlement.EntryDraft, error) {
	input := settlement.ScheduleInput{
		AmountCents:  payment.AmountCents,
		Method:       payment.Method,
		Installments: payment.Installments,
		SaleDate:     saleDate,
	}

	code := settlement.ResolveMethodCode(payment.Method, payment.Installments)
	if payment.CardMachineID != "" && code != "" {
		machine, err := s.repo.GetCardMachineByID(ctx, tenantID, payment.CardMachineID)
		if err != nil {
			return nil, err
		}
		input.HasMachine = true
		input.SettlementDelayDays = machine.SettlementDays
		input.SettlementMode = machine.SettlementMode
		if rate, ok := settlement.LookupRate(code, machine); ok {
			input.FeeFraction = rate.FeeFraction
			input.SettlementDelayDays = rate.SettlementDays
			input.SettlementMode = rate.SettlementMode
		}
	}

	return settlement.Schedule(input), nil
}

func (s *Service) costOfGoodsEntries(ctx context.Context, tenantID string, items []domain.SaleItem, saleCode string, saleDate time.Time, accountID string) ([]domain.Transaction, error) {
	var hasCost bool
	for _, item := range items {
		if item.ProductID != "" && item.UnitCostCents > 0 {
			hasCost = true
			break
		}
	}
	if !hasCost {
		return nil, nil
	}

	cmvCategory, err := s.repo.FindOrCreateCategory(ctx, tenantID, domain.CategoryCodeCMV, "CMV", domain.TxKindExpense)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.Transaction, 0, 2)
	for _, item := range items {
		if item.ProductID == "" || item.UnitCostCents <= 0 {
			continue
		}
		paidAt := saleDate
		entries = append(entries, domain.Transaction{
			TenantID:    tenantID,
			Kind:        domain.TxKindExpense,
			Status:      domain.TxStatusPaid,
			Description: fmt.Sprintf("CMV venda %s - %s", saleCode, item.Description),
			AmountCents: int64(item.Qty) * item.UnitCostCents,
			CategoryID:  cmvCategory.ID,
			AccountID:   accountID,
			Date:        saleDate,
			DueDate:     saleDate,
			PaidAt:      &paidAt,
		})
	}
	return entries, nil
}

// collapseAgendaEvent reconciles an agenda event into the sale that closed
// it. The sale is already committed; everything here is best effort.
func (s *Service) collapseAgendaEvent(ctx context.Context, tenantID string, eventID string, totalCents int64) {
	now := time.Now().UTC()

	if err := s.repo.MarkEventCompletedBySale(ctx, tenantID, eventID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: failed to mark event completed event=%s: %v", eventID, err)
	}
	if err := s.repo.DeleteTransactionsByEvent(ctx, tenantID, eventID); err != nil {
		log.Printf("[service] WARN: failed to drop event forecast entries event=%s: %v", eventID, err)
	}
	if err := s.repo.UpdateNotificationByEventKey(ctx, tenantID, eventID, domain.NotificationActedPDV, totalCents, now, false); err != nil {
		log.Printf("[service] WARN: failed to update event notification event=%s: %v", eventID, err)
	}
	if err := s.repo.UpdateNotificationByEventKey(ctx, tenantID, domain.PayAlertPrefix+eventID, domain.NotificationActedPDV, totalCents, now, true); err != nil {
		log.Printf("[service] WARN: failed to update payment alert event=%s: %v", eventID, err)
	}
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleResponse, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	sale, err := s.repo.GetSaleByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	txs, err := s.repo.ListTransactionsBySale(ctx, actor.TenantID, id)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale, Transactions: txs}, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, actor.TenantID, from, to, limit)
}

// DeleteSale is a hard reversal: the sale, its ledger entries and its stock
// movements all come back out.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, actor.TenantID, id); err != nil {
		return err
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "financeiro", "vendas")
	return nil
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	if req.Kind != domain.TxKindIncome && req.Kind != domain.TxKindExpense {
		return domain.Transaction{}, fmt.Errorf("%w: kind must be income or expense", store.ErrInvalidInput)
	}
	if req.Status == "" {
		req.Status = domain.TxStatusPending
	}
	if req.Status != domain.TxStatusPending && req.Status != domain.TxStatusPaid {
		return domain.Transaction{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, req.Status)
	}
	if req.AmountCents <= 0 {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	date, err := parseDate(req.Date, now)
	if err != nil {
		return domain.Transaction{}, err
	}
	dueDate, err := parseDate(req.DueDate, date)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		TenantID:         actor.TenantID,
		Kind:             req.Kind,
		Status:           req.Status,
		Description:      strings.TrimSpace(req.Description),
		AmountCents:      req.AmountCents,
		InstallmentTotal: 1,
		PaymentMethod:    req.PaymentMethod,
		CategoryID:       req.CategoryID,
		CustomerID:       req.CustomerID,
		SupplierID:       req.SupplierID,
		AccountID:        req.AccountID,
		Date:             date,
		DueDate:          dueDate,
	}
	if tx.Status == domain.TxStatusPaid {
		paidAt := date
		tx.PaidAt = &paidAt
	}

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "financeiro")
	return *created, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.TransactionUpdateRequest) (domain.Transaction, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}

	existing, err := s.repo.GetTransactionByID(ctx, actor.TenantID, id)
	if err != nil {
		return domain.Transaction{}, err
	}

	updated := *existing
	if req.Status != nil {
		switch *req.Status {
		case domain.TxStatusPaid:
			if updated.Status != domain.TxStatusPaid {
				paidAt := time.Now().UTC()
				updated.PaidAt = &paidAt
			}
			updated.Status = domain.TxStatusPaid
		case domain.TxStatusPending:
			updated.Status = domain.TxStatusPending
			updated.PaidAt = nil
		default:
			return domain.Transaction{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, *req.Status)
		}
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.AmountCents != nil {
		if *req.AmountCents <= 0 {
			return domain.Transaction{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
		}
		updated.AmountCents = *req.AmountCents
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.DueDate != nil {
		dueDate, err := parseDate(*req.DueDate, updated.DueDate)
		if err != nil {
			return domain.Transaction{}, err
		}
		updated.DueDate = dueDate
	}

	saved, err := s.repo.UpdateTransaction(ctx, updated)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "financeiro")
	return *saved, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTransaction(ctx, actor.TenantID, id); err != nil {
		return err
	}
	s.invalidateViews(ctx, actor.TenantID, "dashboard", "financeiro")
	return nil
}

func (s *Service) ListTransactions(ctx context.Context, kind string, status string, limit int) ([]domain.Transaction, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, actor.TenantID, kind, status, limit)
}

func (s *Service) ListReceivables(ctx context.Context) ([]domain.ReceivableEntry, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListReceivables(ctx, actor.TenantID, time.Now().UTC())
}

func (s *Service) CreatePurchaseInvoice(ctx context.Context, req domain.PurchaseInvoiceCreateRequest) (domain.PurchaseInvoice, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseInvoice{}, fmt.Errorf("%w: invoice needs a supplier and items", store.ErrInvalidInput)
	}

	var total int64
	for _, item := range req.Items {
		if item.ProductID == "" || item.Qty < 1 || item.CostCents < 0 {
			return domain.PurchaseInvoice{}, fmt.Errorf("%w: bad invoice item", store.ErrInvalidInput)
		}
		if _, err := s.repo.GetProductByID(ctx, actor.TenantID, item.ProductID); err != nil {
			return domain.PurchaseInvoice{}, err
		}
		total += int64(item.Qty) * item.CostCents
	}

	created, err := s.repo.CreatePurchaseInvoice(ctx, domain.PurchaseInvoice{
		TenantID:   actor.TenantID,
		SupplierID: req.SupplierID,
		Number:     strings.TrimSpace(req.Number),
		TotalCents: total,
		Status:     domain.InvoiceStatusOpen,
		Items:      req.Items,
	})
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}
	return *created, nil
}

func (s *Service) ListPurchaseInvoices(ctx context.Context, status string, limit int) ([]domain.PurchaseInvoice, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseInvoices(ctx, actor.TenantID, status, limit)
}

// ReceivePurchaseInvoice books the goods in: stock goes up, product cost
// follows the invoice, and review notifications are raised for products now
// priced below cost and for invoices with no matching paid expense.
func (s *Service) ReceivePurchaseInvoice(ctx context.Context, id string) (domain.PurchaseInvoice, error) {
	actor, err := s.tenantFrom(ctx)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}

	now := time.Now().UTC()
	invoice, err := s.repo.ReceivePurchaseInvoice(ctx, actor.TenantID, id, now)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}

	pricingNeeded := false
	for _, item := range invoice.Items {
		if err := s.repo.AdjustStock(ctx, actor.TenantID, item.ProductID, item.Qty); err != nil {
			log.Printf("[service] WARN: failed to restock product=%s invoice=%s: %v", item.ProductID, invoice.ID, err)
			continue
		}
		if err := s.repo.UpdateProductCost(ctx, actor.TenantID, item.ProductID, item.CostCents); err != nil {
			log.Printf("[service] WARN: failed to update cost product=%s invoice=%s: %v", item.ProductID, invoice.ID, err)
			continue
		}
		product, err := s.repo.GetProductByID(ctx, actor.TenantID, item.ProductID)
		if err == nil && product.ProductType == domain.ProductTypeRevenda && product.PriceCents <= 0 {
			pricingNeeded = true
		}
	}

	if pricingNeeded {
		if _, err := s.repo.UpsertNotification(ctx, domain.Notification{
			TenantID:            actor.TenantID,
			EventID:             "pricing_" + invoice.ID,
			Type:                domain.NotificationTypePricingNeeded,
			Status:              domain.NotificationPending,
			Title:               fmt.Sprintf("Revisar preços da nota %s", invoice.Number),
			ExpectedAmountCents: invoice.TotalCents,
		}); err != nil {
			log.Printf("[service] WARN: failed to raise pricing notification invoice=%s: %v", invoice.ID, err)
		}
	}

	if _, err := s.repo.FindPaidExpenseByInvoice(ctx, actor.TenantID, invoice.ID); errors.Is(err, store.ErrNotFound) {
		if _, err := s.repo.UpsertNotification(ctx, domain.Notification{
			TenantID:            actor.TenantID,
			EventID:             "invoice_" + invoice.ID,
			Type:                domain.NotificationTypePaymentReview,
			Status:              domain.NotificationPending,
			Title:               fmt.Sprintf("Confirmar pagamento da nota %s", invoice.Number),
			ExpectedAmountCents: invoice.TotalCents,
		}); err != nil {
			log.Printf("[service] WARN: failed to raise payment review invoice=%s: %v", invoice.ID, err)
		}
	}

	s.invalidateViews(ctx, actor.TenantID, "dashboard", "estoque", "financeiro")
	return *invoice, nil
}

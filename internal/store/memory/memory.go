package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/store"
	"meunegocio/backend/internal/xid"
)

const seedTenant = "tenant-demo"

type Store struct {
	mu                sync.RWMutex
	productsByID      map[string]domain.Product
	servicesByID      map[string]domain.Service
	customersByID     map[string]domain.Customer
	suppliersByID     map[string]domain.Supplier
	quotesByID        map[string]domain.Quote
	categoriesByID    map[string]domain.Category
	machinesByID      map[string]domain.CardMachine
	accountsByID      map[string]domain.FinancialAccount
	salesByID         map[string]domain.Sale
	transactionsByID  map[string]domain.Transaction
	eventsByID        map[string]domain.AgendaEvent
	notificationsByID map[string]domain.Notification
	notificationByKey map[string]string
	invoicesByID      map[string]domain.PurchaseInvoice
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			TenantID:  seedTenant,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		productsByID:      make(map[string]domain.Product),
		servicesByID:      make(map[string]domain.Service),
		customersByID:     make(map[string]domain.Customer),
		suppliersByID:     make(map[string]domain.Supplier),
		quotesByID:        make(map[string]domain.Quote),
		categoriesByID:    make(map[string]domain.Category),
		machinesByID:      make(map[string]domain.CardMachine),
		accountsByID:      make(map[string]domain.FinancialAccount),
		salesByID:         make(map[string]domain.Sale),
		transactionsByID:  make(map[string]domain.Transaction),
		eventsByID:        make(map[string]domain.AgendaEvent),
		notificationsByID: make(map[string]domain.Notification),
		notificationByKey: make(map[string]string),
		invoicesByID:      make(map[string]domain.PurchaseInvoice),
		usersByUsername:   make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-racao-01", Name: "Ração Premium 10kg", ProductType: domain.ProductTypeRevenda, PriceCents: 18900, AvgCostCents: 11200, ManagesStock: true, StockQty: 40, Active: true},
		{ID: "prd-shampoo-01", Name: "Shampoo Neutro 500ml", ProductType: domain.ProductTypeRevenda, PriceCents: 3400, AvgCostCents: 1700, ManagesStock: true, StockQty: 60, Active: true},
		{ID: "prd-coleira-01", Name: "Coleira Ajustável", ProductType: domain.ProductTypeRevenda, PriceCents: 5200, AvgCostCents: 2600, ManagesStock: true, StockQty: 25, Active: true},
		{ID: "prd-lamina-01", Name: "Lâmina de Tosa", ProductType: domain.ProductTypeInterno, PriceCents: 0, AvgCostCents: 4800, ManagesStock: false, Active: true},
	}
	for _, p := range products {
		p.TenantID = seedTenant
		p.CreatedAt = now
		s.productsByID[p.ID] = p
	}

	services := []domain.Service{
		{ID: "svc-banho-01", Name: "Banho Completo", PriceCents: 6000, Active: true},
		{ID: "svc-tosa-01", Name: "Tosa Higiênica", PriceCents: 8000, Active: true},
	}
	for _, sv := range services {
		sv.TenantID = seedTenant
		sv.CreatedAt = now
		s.servicesByID[sv.ID] = sv
	}

	customers := []domain.Customer{
		{ID: "cus-ana-01", Name: "Ana Souza", Phone: "+55 11 98888-0001"},
		{ID: "cus-bruno-01", Name: "Bruno Lima", Phone: "+55 11 98888-0002"},
	}
	for _, c := range customers {
		c.TenantID = seedTenant
		c.CreatedAt = now
		s.customersByID[c.ID] = c
	}

	machine := domain.CardMachine{
		ID:             "mch-stone-01",
		TenantID:       seedTenant,
		Name:           "Maquininha Stone",
		SettlementDays: 1,
		SettlementMode: domain.SettlementParcelado,
		Rates: []domain.CardMachineRate{
			{MethodCode: "DEBITO", FeeFraction: 0.02, SettlementDays: 1, SettlementMode: domain.SettlementParcelado},
			{MethodCode: "CREDITO_1X", FeeFraction: 0.03, SettlementDays: 30, SettlementMode: domain.SettlementParcelado},
			{MethodCode: "CREDITO_3X", FeeFraction: 0.05, SettlementDays: 5, SettlementMode: domain.SettlementParcelado},
			{MethodCode: "PIX", FeeFraction: 0.009, SettlementDays: 0, SettlementMode: domain.SettlementParcelado},
		},
		Active:    true,
		CreatedAt: now,
	}
	s.machinesByID[machine.ID] = machine

	account := domain.FinancialAccount{ID: "acc-caixa-01", TenantID: seedTenant, Name: "Caixa Principal", IsDefault: true, CreatedAt: now}
	s.accountsByID[account.ID] = account

	s.usersByUsername = seedUsers()
	return s
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func ensureID(id string, prefix string) string {
	if id != "" {
		return id
	}
	return xid.New(prefix)
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.TenantID != tenantID || !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmpString(a.Name, b.Name) })
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, tenantID string, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.productsByID[id]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.TenantID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	product.ID = ensureID(product.ID, "prd")
	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok || existing.TenantID != product.TenantID {
		return nil, store.ErrNotFound
	}
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, tenantID string, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.productsByID[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	if !p.ManagesStock {
		return nil
	}
	if p.StockQty+delta < 0 {
		return store.ErrInsufficientStock
	}
	p.StockQty += delta
	s.productsByID[productID] = p
	return nil
}

func (s *Store) UpdateProductCost(_ context.Context, tenantID string, productID string, avgCostCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.productsByID[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	p.AvgCostCents = avgCostCents
	s.productsByID[productID] = p
	return nil
}

func (s *Store) ListServices(_ context.Context, tenantID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.servicesByID))
	for _, sv := range s.servicesByID {
		if sv.TenantID != tenantID || !sv.Active {
			continue
		}
		services = append(services, sv)
	}
	slices.SortFunc(services, func(a, b domain.Service) int { return cmpString(a.Name, b.Name) })
	return services, nil
}

func (s *Store) GetServiceByID(_ context.Context, tenantID string, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sv, ok := s.servicesByID[id]
	if !ok || sv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := sv
	return &out, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc.TenantID == "" || svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	svc.ID = ensureID(svc.ID, "svc")
	svc.Active = true
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	s.servicesByID[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context, tenantID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if c.TenantID != tenantID {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmpString(a.Name, b.Name) })
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, tenantID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok || c.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.TenantID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.ID = ensureID(customer.ID, "cus")
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context, tenantID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sp := range s.suppliersByID {
		if sp.TenantID != tenantID {
			continue
		}
		suppliers = append(suppliers, sp)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int { return cmpString(a.Name, b.Name) })
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.TenantID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	supplier.ID = ensureID(supplier.ID, "sup")
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListQuotes(_ context.Context, tenantID string) ([]domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quotes := make([]domain.Quote, 0, len(s.quotesByID))
	for _, q := range s.quotesByID {
		if q.TenantID != tenantID {
			continue
		}
		quotes = append(quotes, cloneQuote(q))
	}
	slices.SortFunc(quotes, func(a, b domain.Quote) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return quotes, nil
}

func (s *Store) GetQuoteByID(_ context.Context, tenantID string, id string) (*domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotesByID[id]
	if !ok || q.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := cloneQuote(q)
	return &out, nil
}

func (s *Store) CreateQuote(_ context.Context, quote domain.Quote) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quote.TenantID == "" {
		return nil, store.ErrInvalidInput
	}
	quote.ID = ensureID(quote.ID, "quo")
	if quote.Status == "" {
		quote.Status = domain.QuoteDraft
	}
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = time.Now().UTC()
	}
	s.quotesByID[quote.ID] = cloneQuote(quote)
	created := cloneQuote(quote)
	return &created, nil
}

func (s *Store) UpdateQuoteStatus(_ context.Context, tenantID string, id string, status string) (*domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotesByID[id]
	if !ok || q.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	q.Status = status
	s.quotesByID[id] = q
	out := cloneQuote(q)
	return &out, nil
}

func cloneQuote(q domain.Quote) domain.Quote {
	out := q
	out.Items = slices.Clone(q.Items)
	return out
}

func (s *Store) ListCategories(_ context.Context, tenantID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, c := range s.categoriesByID {
		if c.TenantID != tenantID {
			continue
		}
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.TenantID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	category.ID = ensureID(category.ID, "cat")
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categoriesByID[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) FindOrCreateCategory(_ context.Context, tenantID string, reservedCode string, name string, kind string) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categoriesByID {
		if c.TenantID == tenantID && c.ReservedCode == reservedCode {
			out := c
			return &out, nil
		}
	}

	// A user-created category with the same name and kind takes over the
	// reserved code instead of being shadowed by a duplicate system row.
	for id, c := range s.categoriesByID {
		if c.TenantID == tenantID && c.ReservedCode == "" && c.Kind == kind && strings.EqualFold(c.Name, name) {
			c.ReservedCode = reservedCode
			s.categoriesByID[id] = c
			out := c
			return &out, nil
		}
	}

	category := domain.Category{
		ID:           xid.New("cat"),
		TenantID:     tenantID,
		Name:         name,
		Kind:         kind,
		ReservedCode: reservedCode,
		IsSystem:     true,
		CreatedAt:    time.Now().UTC(),
	}
	s.categoriesByID[category.ID] = category
	out := category
	return &out, nil
}

func (s *Store) ListCardMachines(_ context.Context, tenantID string) ([]domain.CardMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	machines := make([]domain.CardMachine, 0, len(s.machinesByID))
	for _, m := range s.machinesByID {
		if m.TenantID != tenantID || !m.Active {
			continue
		}
		machines = append(machines, cloneMachine(m))
	}
	slices.SortFunc(machines, func(a, b domain.CardMachine) int { return cmpString(a.Name, b.Name) })
	return machines, nil
}

func (s *Store) GetCardMachineByID(_ context.Context, tenantID string, id string) (*domain.CardMachine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machinesByID[id]
	if !ok || m.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := cloneMachine(m)
	return &out, nil
}

func (s *Store) CreateCardMachine(_ context.Context, machine domain.CardMachine) (*domain.CardMachine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if machine.TenantID == "" || machine.Name == "" {
		return nil, store.ErrInvalidInput
	}
	machine.ID = ensureID(machine.ID, "mch")
	machine.Active = true
	if machine.CreatedAt.IsZero() {
		machine.CreatedAt = time.Now().UTC()
	}
	s.machinesByID[machine.ID] = cloneMachine(machine)
	created := cloneMachine(machine)
	return &created, nil
}

func cloneMachine(m domain.CardMachine) domain.CardMachine {
	out := m
	out.Rates = slices.Clone(m.Rates)
	return out
}

func (s *Store) ListFinancialAccounts(_ context.Context, tenantID string) ([]domain.FinancialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.FinancialAccount, 0, len(s.accountsByID))
	for _, a := range s.accountsByID {
		if a.TenantID != tenantID {
			continue
		}
		accounts = append(accounts, a)
	}
	slices.SortFunc(accounts, func(a, b domain.FinancialAccount) int { return cmpString(a.Name, b.Name) })
	return accounts, nil
}

func (s *Store) GetDefaultFinancialAccount(_ context.Context, tenantID string) (*domain.FinancialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accountsByID {
		if a.TenantID == tenantID && a.IsDefault {
			out := a
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSale(_ context.Context, bundle store.SaleBundle) (*domain.Sale, []domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := bundle.Sale
	if sale.TenantID == "" || len(sale.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	for productID, qty := range bundle.StockDecrements {
		p, ok := s.productsByID[productID]
		if !ok || p.TenantID != sale.TenantID {
			return nil, nil, store.ErrNotFound
		}
		if p.ManagesStock && p.StockQty < qty {
			return nil, nil, store.ErrInsufficientStock
		}
	}

	sale.ID = ensureID(sale.ID, "sal")
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for i := range sale.Items {
		sale.Items[i].ID = ensureID(sale.Items[i].ID, "sit")
		sale.Items[i].SaleID = sale.ID
	}

	for productID, qty := range bundle.StockDecrements {
		p := s.productsByID[productID]
		if p.ManagesStock {
			p.StockQty -= qty
			s.productsByID[productID] = p
		}
	}

	created := make([]domain.Transaction, 0, len(bundle.Transactions))
	for _, tx := range bundle.Transactions {
		tx.ID = ensureID(tx.ID, "txn")
		tx.TenantID = sale.TenantID
		tx.SaleID = sale.ID
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = sale.CreatedAt
		}
		s.transactionsByID[tx.ID] = tx
		created = append(created, tx)
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, created, nil
}

func (s *Store) GetSaleByID(_ context.Context, tenantID string, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok || sale.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && sale.Date.Before(from) {
			continue
		}
		if !to.IsZero() && sale.Date.After(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return b.Date.Compare(a.Date) })
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

// DeleteSale hard-reverses the sale: its ledger entries go away and managed
// stock is restored in the same critical section.
func (s *Store) DeleteSale(_ context.Context, tenantID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok || sale.TenantID != tenantID {
		return store.ErrNotFound
	}

	for txID, tx := range s.transactionsByID {
		if tx.TenantID == tenantID && tx.SaleID == id {
			delete(s.transactionsByID, txID)
		}
	}

	for _, item := range sale.Items {
		if item.ProductID == "" {
			continue
		}
		p, ok := s.productsByID[item.ProductID]
		if ok && p.ManagesStock {
			p.StockQty += item.Qty
			s.productsByID[item.ProductID] = p
		}
	}

	delete(s.salesByID, id)
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = slices.Clone(sale.Items)
	return out
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.TenantID == "" || tx.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	tx.ID = ensureID(tx.ID, "txn")
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.transactionsByID[tx.ID] = tx
	created := tx
	return &created, nil
}

func (s *Store) GetTransactionByID(_ context.Context, tenantID string, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok || tx.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := tx
	return &out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactionsByID[tx.ID]
	if !ok || existing.TenantID != tx.TenantID {
		return nil, store.ErrNotFound
	}
	s.transactionsByID[tx.ID] = tx
	updated := tx
	return &updated, nil
}

func (s *Store) DeleteTransaction(_ context.Context, tenantID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok || tx.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, tenantID string, kind string, status string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if tx.TenantID != tenantID {
			continue
		}
		if kind != "" && tx.Kind != kind {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		txs = append(txs, tx)
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int { return a.DueDate.Compare(b.DueDate) })
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) ListTransactionsBySale(_ context.Context, tenantID string, saleID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, 4)
	for _, tx := range s.transactionsByID {
		if tx.TenantID == tenantID && tx.SaleID == saleID {
			txs = append(txs, tx)
		}
	}
	slices.SortFunc(txs, func(a, b domain.Transaction) int { return a.InstallmentNumber - b.InstallmentNumber })
	return txs, nil
}

func (s *Store) FindPendingIncomeByEvent(_ context.Context, tenantID string, eventID string) (*domain.Transaction, error) {
	return s.findIncomeByEvent(tenantID, eventID, domain.TxStatusPending)
}

func (s *Store) FindPaidIncomeByEvent(_ context.Context, tenantID string, eventID string) (*domain.Transaction, error) {
	return s.findIncomeByEvent(tenantID, eventID, domain.TxStatusPaid)
}

func (s *Store) findIncomeByEvent(tenantID string, eventID string, status string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactionsByID {
		if tx.TenantID == tenantID && tx.EventID == eventID && tx.Kind == domain.TxKindIncome && tx.Status == status {
			out := tx
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteTransactionsByEvent(_ context.Context, tenantID string, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tx := range s.transactionsByID {
		if tx.TenantID == tenantID && tx.EventID == eventID {
			delete(s.transactionsByID, id)
		}
	}
	return nil
}

func (s *Store) FindPaidExpenseByInvoice(_ context.Context, tenantID string, invoiceID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactionsByID {
		if tx.TenantID == tenantID && tx.PurchaseInvoiceID == invoiceID && tx.Kind == domain.TxKindExpense && tx.Status == domain.TxStatusPaid {
			out := tx
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListReceivables(_ context.Context, tenantID string, now time.Time) ([]domain.ReceivableEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ReceivableEntry, 0, 16)
	for _, tx := range s.transactionsByID {
		if tx.TenantID != tenantID || tx.Kind != domain.TxKindIncome || tx.Status != domain.TxStatusPending {
			continue
		}
		entry := domain.ReceivableEntry{Transaction: tx, Overdue: tx.DueDate.Before(now)}
		if tx.CustomerID != "" {
			if c, ok := s.customersByID[tx.CustomerID]; ok {
				entry.CustomerName = c.Name
			}
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b domain.ReceivableEntry) int {
		return a.Transaction.DueDate.Compare(b.Transaction.DueDate)
	})
	return entries, nil
}

func (s *Store) ListAgendaEvents(_ context.Context, tenantID string, from time.Time, to time.Time) ([]domain.AgendaEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]domain.AgendaEvent, 0, len(s.eventsByID))
	for _, e := range s.eventsByID {
		if e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.StartsAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.StartsAt.After(to) {
			continue
		}
		events = append(events, cloneEvent(e))
	}
	slices.SortFunc(events, func(a, b domain.AgendaEvent) int { return a.StartsAt.Compare(b.StartsAt) })
	return events, nil
}

func (s *Store) GetAgendaEventByID(_ context.Context, tenantID string, id string) (*domain.AgendaEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.eventsByID[id]
	if !ok || e.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (s *Store) CreateAgendaEvent(_ context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.TenantID == "" || event.Title == "" {
		return nil, store.ErrInvalidInput
	}
	event.ID = ensureID(event.ID, "evt")
	if event.AttendanceStatus == "" {
		event.AttendanceStatus = domain.AttendanceScheduled
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.eventsByID[event.ID] = cloneEvent(event)
	created := cloneEvent(event)
	return &created, nil
}

func (s *Store) UpdateAgendaEvent(_ context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.eventsByID[event.ID]
	if !ok || existing.TenantID != event.TenantID {
		return nil, store.ErrNotFound
	}
	s.eventsByID[event.ID] = cloneEvent(event)
	updated := cloneEvent(event)
	return &updated, nil
}

func (s *Store) DeleteAgendaEvent(_ context.Context, tenantID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.eventsByID[id]
	if !ok || e.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(s.eventsByID, id)
	return nil
}

func (s *Store) MarkEventCompletedBySale(_ context.Context, tenantID string, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.eventsByID[eventID]
	if !ok || e.TenantID != tenantID {
		return store.ErrNotFound
	}
	e.AttendanceStatus = domain.AttendanceCompleted
	e.PaymentStatus = domain.PaymentStatusPaid
	e.NotificationStatus = domain.NotificationActedPDV
	actedAt := at
	e.NotificationActedAt = &actedAt
	s.eventsByID[eventID] = e
	return nil
}

func cloneEvent(e domain.AgendaEvent) domain.AgendaEvent {
	out := e
	out.ServiceIDs = slices.Clone(e.ServiceIDs)
	out.ProductIDs = slices.Clone(e.ProductIDs)
	if e.NotificationActedAt != nil {
		at := *e.NotificationActedAt
		out.NotificationActedAt = &at
	}
	return out
}

func notificationKey(tenantID string, eventID string) string {
	return tenantID + "|" + eventID
}

// UpsertNotification keys on (tenant, event). An existing row keeps its
// status unless it is still pending; title, amounts and due date refresh
// either way.
func (s *Store) UpsertNotification(_ context.Context, notification domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notification.TenantID == "" || notification.EventID == "" {
		return nil, store.ErrInvalidInput
	}

	key := notificationKey(notification.TenantID, notification.EventID)
	if existingID, ok := s.notificationByKey[key]; ok {
		existing := s.notificationsByID[existingID]
		existing.Title = notification.Title
		existing.ExpectedAmountCents = notification.ExpectedAmountCents
		existing.DueAt = notification.DueAt
		if existing.Status == domain.NotificationPending && notification.Status != "" {
			existing.Status = notification.Status
		}
		s.notificationsByID[existingID] = existing
		out := existing
		return &out, nil
	}

	notification.ID = ensureID(notification.ID, "ntf")
	if notification.Status == "" {
		notification.Status = domain.NotificationPending
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	s.notificationsByID[notification.ID] = notification
	s.notificationByKey[key] = notification.ID
	created := notification
	return &created, nil
}

func (s *Store) GetNotificationByEventKey(_ context.Context, tenantID string, eventID string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.notificationByKey[notificationKey(tenantID, eventID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	n := s.notificationsByID[id]
	out := n
	return &out, nil
}

func (s *Store) ListNotifications(_ context.Context, tenantID string, status string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notifications := make([]domain.Notification, 0, len(s.notificationsByID))
	for _, n := range s.notificationsByID {
		if n.TenantID != tenantID {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		notifications = append(notifications, n)
	}
	slices.SortFunc(notifications, func(a, b domain.Notification) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (s *Store) ListPendingNotifications(ctx context.Context, tenantID string) ([]domain.Notification, error) {
	return s.ListNotifications(ctx, tenantID, domain.NotificationPending, 0)
}

func (s *Store) UpdateNotificationStatus(_ context.Context, tenantID string, id string, status string, actionAmountCents int64, at time.Time) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notificationsByID[id]
	if !ok || n.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	n.Status = status
	if actionAmountCents > 0 {
		n.ActionAmountCents = actionAmountCents
	}
	actedAt := at
	n.ActionAt = &actedAt
	s.notificationsByID[id] = n
	out := n
	return &out, nil
}

func (s *Store) UpdateNotificationByEventKey(_ context.Context, tenantID string, eventID string, status string, actionAmountCents int64, at time.Time, onlyIfPending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.notificationByKey[notificationKey(tenantID, eventID)]
	if !ok {
		return nil
	}
	n := s.notificationsByID[id]
	if onlyIfPending && n.Status != domain.NotificationPending {
		return nil
	}
	n.Status = status
	if actionAmountCents > 0 {
		n.ActionAmountCents = actionAmountCents
	}
	actedAt := at
	n.ActionAt = &actedAt
	s.notificationsByID[id] = n
	return nil
}

func (s *Store) CreatePurchaseInvoice(_ context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.TenantID == "" || invoice.SupplierID == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	invoice.ID = ensureID(invoice.ID, "inv")
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusOpen
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	s.invoicesByID[invoice.ID] = cloneInvoice(invoice)
	created := cloneInvoice(invoice)
	return &created, nil
}

func (s *Store) GetPurchaseInvoiceByID(_ context.Context, tenantID string, id string) (*domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoicesByID[id]
	if !ok || inv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := cloneInvoice(inv)
	return &out, nil
}

func (s *Store) ListPurchaseInvoices(_ context.Context, tenantID string, status string, limit int) ([]domain.PurchaseInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.PurchaseInvoice, 0, len(s.invoicesByID))
	for _, inv := range s.invoicesByID {
		if inv.TenantID != tenantID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		invoices = append(invoices, cloneInvoice(inv))
	}
	slices.SortFunc(invoices, func(a, b domain.PurchaseInvoice) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) ReceivePurchaseInvoice(_ context.Context, tenantID string, id string, receivedAt time.Time) (*domain.PurchaseInvoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoicesByID[id]
	if !ok || inv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if inv.Status == domain.InvoiceStatusReceived {
		return nil, store.ErrInvalidInput
	}
	inv.Status = domain.InvoiceStatusReceived
	at := receivedAt
	inv.ReceivedAt = &at
	s.invoicesByID[id] = inv
	out := cloneInvoice(inv)
	return &out, nil
}

func cloneInvoice(inv domain.PurchaseInvoice) domain.PurchaseInvoice {
	out := inv
	out.Items = slices.Clone(inv.Items)
	if inv.ReceivedAt != nil {
		at := *inv.ReceivedAt
		out.ReceivedAt = &at
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *Store) GetDailySummary(_ context.Context, tenantID string, day time.Time) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{Date: day.UTC().Format("2006-01-02")}

	for _, sale := range s.salesByID {
		if sale.TenantID == tenantID && sameDay(sale.Date, day) {
			summary.SalesCount++
			summary.GrossSalesCents += sale.TotalCents
		}
	}
	for _, tx := range s.transactionsByID {
		if tx.TenantID != tenantID {
			continue
		}
		switch {
		case tx.Kind == domain.TxKindIncome && tx.Status == domain.TxStatusPaid && tx.PaidAt != nil && sameDay(*tx.PaidAt, day):
			summary.ReceivedCents += tx.AmountCents
		case tx.Kind == domain.TxKindIncome && tx.Status == domain.TxStatusPending && sameDay(tx.DueDate, day):
			summary.PendingCents += tx.AmountCents
		case tx.Kind == domain.TxKindExpense && sameDay(tx.Date, day):
			summary.ExpensesCents += tx.AmountCents
		}
	}
	for _, e := range s.eventsByID {
		if e.TenantID == tenantID && sameDay(e.StartsAt, day) {
			summary.EventsScheduled++
		}
	}
	for _, n := range s.notificationsByID {
		if n.TenantID == tenantID && n.Status == domain.NotificationPending {
			summary.PendingAlertsCount++
		}
	}
	return summary, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
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

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return cmpString(a.Username, b.Username) })
	return users, nil
}

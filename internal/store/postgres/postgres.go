package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"meunegocio/backend/internal/domain"
	"meunegocio/backend/internal/store"
	"meunegocio/backend/internal/xid"
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

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, product_type, price_cents, avg_cost_cents, manages_stock, stock_qty, active, created_at
		FROM products
		WHERE tenant_id = $1 AND active = true
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.ProductType, &p.PriceCents, &p.AvgCostCents, &p.ManagesStock, &p.StockQty, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, tenantID string, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, product_type, price_cents, avg_cost_cents, manages_stock, stock_qty, active, created_at
		FROM products
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.ProductType, &p.PriceCents, &p.AvgCostCents, &p.ManagesStock, &p.StockQty, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.TenantID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, name, product_type, price_cents, avg_cost_cents, manages_stock, stock_qty, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, product.ID, product.TenantID, product.Name, product.ProductType, product.PriceCents, product.AvgCostCents, product.ManagesStock, product.StockQty, product.Active, product.CreatedAt)
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
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, product_type = $4, price_cents = $5, avg_cost_cents = $6, manages_stock = $7, stock_qty = $8, active = $9, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, product.TenantID, product.ID, product.Name, product.ProductType, product.PriceCents, product.AvgCostCents, product.ManagesStock, product.StockQty, product.Active)
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

func (s *Store) AdjustStock(ctx context.Context, tenantID string, productID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND manages_stock = true AND stock_qty + $3 >= 0
	`, tenantID, productID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var managesStock bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT manages_stock FROM products WHERE tenant_id = $1 AND id = $2
		`, tenantID, productID).Scan(&managesStock); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if !managesStock {
			return nil
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) UpdateProductCost(ctx context.Context, tenantID string, productID string, avgCostCents int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET avg_cost_cents = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID, avgCostCents)
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

func (s *Store) ListServices(ctx context.Context, tenantID string) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, price_cents, active, created_at
		FROM services
		WHERE tenant_id = $1 AND active = true
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		var sv domain.Service
		if err := rows.Scan(&sv.ID, &sv.TenantID, &sv.Name, &sv.PriceCents, &sv.Active, &sv.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) GetServiceByID(ctx context.Context, tenantID string, id string) (*domain.Service, error) {
	var sv domain.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, price_cents, active, created_at
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&sv.ID, &sv.TenantID, &sv.Name, &sv.PriceCents, &sv.Active, &sv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sv, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	if svc.TenantID == "" || svc.Name == "" || svc.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	svc.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, tenant_id, name, price_cents, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, svc.ID, svc.TenantID, svc.Name, svc.PriceCents, svc.Active, svc.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, tenantID string, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(phone,''), COALESCE(email,''), created_at
		FROM customers
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.TenantID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, tenant_id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.TenantID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context, tenantID string) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(phone,''), created_at
		FROM suppliers
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.TenantID, &sp.Name, &sp.Phone, &sp.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.TenantID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, tenant_id, name, phone, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, supplier.ID, supplier.TenantID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListQuotes(ctx context.Context, tenantID string) ([]domain.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(customer_id,''), status, total_cents, items, created_at
		FROM quotes
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make([]domain.Quote, 0, 32)
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func scanQuote(rows *sql.Rows) (domain.Quote, error) {
	var q domain.Quote
	var itemsJSON []byte
	if err := rows.Scan(&q.ID, &q.TenantID, &q.CustomerID, &q.Status, &q.TotalCents, &itemsJSON, &q.CreatedAt); err != nil {
		return q, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &q.Items); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (s *Store) GetQuoteByID(ctx context.Context, tenantID string, id string) (*domain.Quote, error) {
	var q domain.Quote
	var itemsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, COALESCE(customer_id,''), status, total_cents, items, created_at
		FROM quotes
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&q.ID, &q.TenantID, &q.CustomerID, &q.Status, &q.TotalCents, &itemsJSON, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &q.Items); err != nil {
			return nil, err
		}
	}
	return &q, nil
}

func (s *Store) CreateQuote(ctx context.Context, quote domain.Quote) (*domain.Quote, error) {
	if quote.TenantID == "" {
		return nil, store.ErrInvalidInput
	}
	if quote.ID == "" {
		quote.ID = xid.New("quo")
	}
	if quote.Status == "" {
		quote.Status = domain.QuoteDraft
	}
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = time.Now().UTC()
	}
	itemsJSON, err := json.Marshal(quote.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quotes (id, tenant_id, customer_id, status, total_cents, items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, quote.ID, quote.TenantID, nullIfEmpty(quote.CustomerID), quote.Status, quote.TotalCents, itemsJSON, quote.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := quote
	return &created, nil
}

func (s *Store) UpdateQuoteStatus(ctx context.Context, tenantID string, id string, status string) (*domain.Quote, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE quotes SET status = $3 WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, status)
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
	return s.GetQuoteByID(ctx, tenantID, id)
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, kind, COALESCE(color,''), COALESCE(reserved_code,''), is_system, created_at
		FROM categories
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.Color, &c.ReservedCode, &c.IsSystem, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.TenantID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, tenant_id, name, kind, color, reserved_code, is_system, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, category.ID, category.TenantID, category.Name, category.Kind, nullIfEmpty(category.Color), nullIfEmpty(category.ReservedCode), category.IsSystem, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := category
	return &created, nil
}

// FindOrCreateCategory resolves reserved system categories idempotently:
// first by the reserved code, then by claiming a same-named user category,
// before inserting. Concurrent inserts race on the (tenant_id, reserved_code)
// unique index and both end up with the same row.
func (s *Store) FindOrCreateCategory(ctx context.Context, tenantID string, reservedCode string, name string, kind string) (*domain.Category, error) {
	const returning = `RETURNING id, tenant_id, name, kind, COALESCE(color,''), COALESCE(reserved_code,''), is_system, created_at`

	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, kind, COALESCE(color,''), COALESCE(reserved_code,''), is_system, created_at
		FROM categories
		WHERE tenant_id = $1 AND reserved_code = $2
	`, tenantID, reservedCode).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.Color, &c.ReservedCode, &c.IsSystem, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE categories
		SET reserved_code = $2
		WHERE id = (
			SELECT id FROM categories
			WHERE tenant_id = $1 AND reserved_code IS NULL AND kind = $4 AND lower(name) = lower($3)
			ORDER BY created_at
			LIMIT 1
		)
		`+returning, tenantID, reservedCode, name, kind).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.Color, &c.ReservedCode, &c.IsSystem, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, tenant_id, name, kind, reserved_code, is_system, created_at)
		VALUES ($1,$2,$3,$4,$5,true,now())
		ON CONFLICT (tenant_id, reserved_code)
		DO UPDATE SET name = categories.name
		`+returning, xid.New("cat"), tenantID, name, kind, reservedCode).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.Color, &c.ReservedCode, &c.IsSystem, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCardMachines(ctx context.Context, tenantID string) ([]domain.CardMachine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, settlement_days, COALESCE(settlement_mode,''), rates, active, created_at
		FROM card_machines
		WHERE tenant_id = $1 AND active = true
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	machines := make([]domain.CardMachine, 0, 8)
	for rows.Next() {
		var m domain.CardMachine
		var ratesJSON []byte
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.SettlementDays, &m.SettlementMode, &ratesJSON, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(ratesJSON) > 0 {
			if err := json.Unmarshal(ratesJSON, &m.Rates); err != nil {
				return nil, err
			}
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return machines, nil
}

func (s *Store) GetCardMachineByID(ctx context.Context, tenantID string, id string) (*domain.CardMachine, error) {
	var m domain.CardMachine
	var ratesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, settlement_days, COALESCE(settlement_mode,''), rates, active, created_at
		FROM card_machines
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&m.ID, &m.TenantID, &m.Name, &m.SettlementDays, &m.SettlementMode, &ratesJSON, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(ratesJSON) > 0 {
		if err := json.Unmarshal(ratesJSON, &m.Rates); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (s *Store) CreateCardMachine(ctx context.Context, machine domain.CardMachine) (*domain.CardMachine, error) {
	if machine.TenantID == "" || machine.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if machine.ID == "" {
		machine.ID = xid.New("mch")
	}
	if machine.CreatedAt.IsZero() {
		machine.CreatedAt = time.Now().UTC()
	}
	machine.Active = true
	ratesJSON, err := json.Marshal(machine.Rates)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_machines (id, tenant_id, name, settlement_days, settlement_mode, rates, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, machine.ID, machine.TenantID, machine.Name, machine.SettlementDays, nullIfEmpty(machine.SettlementMode), ratesJSON, machine.Active, machine.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := machine
	return &created, nil
}

func (s *Store) ListFinancialAccounts(ctx context.Context, tenantID string) ([]domain.FinancialAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, is_default, created_at
		FROM financial_accounts
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.FinancialAccount, 0, 8)
	for rows.Next() {
		var a domain.FinancialAccount
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.IsDefault, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) GetDefaultFinancialAccount(ctx context.Context, tenantID string) (*domain.FinancialAccount, error) {
	var a domain.FinancialAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, is_default, created_at
		FROM financial_accounts
		WHERE tenant_id = $1 AND is_default = true
		LIMIT 1
	`, tenantID).Scan(&a.ID, &a.TenantID, &a.Name, &a.IsDefault, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateSale writes the sale, its items, its ledger entries and the stock
// decrements in one serializable transaction. Stock rows are locked first so
// concurrent sales cannot oversell a managed product.
func (s *Store) CreateSale(ctx context.Context, bundle store.SaleBundle) (*domain.Sale, []domain.Transaction, error) {
	sale := bundle.Sale
	if sale.TenantID == "" || len(sale.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for productID, qty := range bundle.StockDecrements {
		var managesStock bool
		var stockQty int
		err := pgTx.QueryRowContext(ctx, `
			SELECT manages_stock, stock_qty
			FROM products
			WHERE tenant_id = $1 AND id = $2
			FOR UPDATE
		`, sale.TenantID, productID).Scan(&managesStock, &stockQty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, store.ErrNotFound
			}
			return nil, nil, err
		}
		if !managesStock {
			continue
		}
		if stockQty < qty {
			return nil, nil, store.ErrInsufficientStock
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_qty = stock_qty - $3, updated_at = now()
			WHERE tenant_id = $1 AND id = $2
		`, sale.TenantID, productID, qty); err != nil {
			return nil, nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, tenant_id, code, customer_id, carrier_id, event_id,
			total_cents, freight_cents, freight_paid_by, freight_payment_status,
			status, date, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, sale.ID, sale.TenantID, sale.Code, nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.CarrierID), nullIfEmpty(sale.EventID),
		sale.TotalCents, sale.FreightCents, nullIfEmpty(sale.FreightPaidBy), nullIfEmpty(sale.FreightPaymentStatus),
		sale.Status, sale.Date, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrInvalidInput
		}
		return nil, nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New("sit")
		}
		item.SaleID = sale.ID
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, service_id, description, qty, unit_price_cents, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, nullIfEmpty(item.ProductID), nullIfEmpty(item.ServiceID), item.Description, item.Qty, item.UnitPriceCents, item.UnitCostCents)
		if err != nil {
			return nil, nil, err
		}
	}

	created := make([]domain.Transaction, 0, len(bundle.Transactions))
	for _, tx := range bundle.Transactions {
		if tx.ID == "" {
			tx.ID = xid.New("txn")
		}
		tx.TenantID = sale.TenantID
		tx.SaleID = sale.ID
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = sale.CreatedAt
		}
		if err := insertTransaction(ctx, pgTx, tx); err != nil {
			return nil, nil, err
		}
		created = append(created, tx)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, err
	}
	return &sale, created, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, tx domain.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, tenant_id, kind, status, description, amount_cents, fee_applied,
			installment_number, installment_total, payment_method,
			category_id, customer_id, supplier_id, sale_id, event_id, quote_id,
			account_id, card_machine_id, purchase_invoice_id,
			date, due_date, paid_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, tx.ID, tx.TenantID, tx.Kind, tx.Status, tx.Description, tx.AmountCents, tx.FeeApplied,
		tx.InstallmentNumber, tx.InstallmentTotal, nullIfEmpty(tx.PaymentMethod),
		nullIfEmpty(tx.CategoryID), nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.SupplierID),
		nullIfEmpty(tx.SaleID), nullIfEmpty(tx.EventID), nullIfEmpty(tx.QuoteID),
		nullIfEmpty(tx.AccountID), nullIfEmpty(tx.CardMachineID), nullIfEmpty(tx.PurchaseInvoiceID),
		tx.Date, tx.DueDate, nullTime(tx.PaidAt), tx.CreatedAt)
	return err
}

const transactionColumns = `
	id, tenant_id, kind, status, description, amount_cents, fee_applied,
	installment_number, installment_total, COALESCE(payment_method,''),
	COALESCE(category_id,''), COALESCE(customer_id,''), COALESCE(supplier_id,''),
	COALESCE(sale_id,''), COALESCE(event_id,''), COALESCE(quote_id,''),
	COALESCE(account_id,''), COALESCE(card_machine_id,''), COALESCE(purchase_invoice_id,''),
	date, due_date, paid_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var paidAt sql.NullTime
	err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.Kind, &tx.Status, &tx.Description, &tx.AmountCents, &tx.FeeApplied,
		&tx.InstallmentNumber, &tx.InstallmentTotal, &tx.PaymentMethod,
		&tx.CategoryID, &tx.CustomerID, &tx.SupplierID,
		&tx.SaleID, &tx.EventID, &tx.QuoteID,
		&tx.AccountID, &tx.CardMachineID, &tx.PurchaseInvoiceID,
		&tx.Date, &tx.DueDate, &paidAt, &tx.CreatedAt)
	if err != nil {
		return tx, err
	}
	if paidAt.Valid {
		at := paidAt.Time.UTC()
		tx.PaidAt = &at
	}
	return tx, nil
}

func (s *Store) GetSaleByID(ctx context.Context, tenantID string, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, COALESCE(customer_id,''), COALESCE(carrier_id,''), COALESCE(event_id,''),
			total_cents, freight_cents, COALESCE(freight_paid_by,''), COALESCE(freight_payment_status,''),
			status, date, created_at
		FROM sales
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&sale.ID, &sale.TenantID, &sale.Code, &sale.CustomerID, &sale.CarrierID, &sale.EventID,
		&sale.TotalCents, &sale.FreightCents, &sale.FreightPaidBy, &sale.FreightPaymentStatus,
		&sale.Status, &sale.Date, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.listSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, COALESCE(product_id,''), COALESCE(service_id,''), description, qty, unit_price_cents, unit_cost_cents
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
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ServiceID, &item.Description, &item.Qty, &item.UnitPriceCents, &item.UnitCostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, code, COALESCE(customer_id,''), COALESCE(carrier_id,''), COALESCE(event_id,''),
			total_cents, freight_cents, COALESCE(freight_paid_by,''), COALESCE(freight_payment_status,''),
			status, date, created_at
		FROM sales
		WHERE tenant_id = $1
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date DESC
		LIMIT $4
	`, tenantID, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.TenantID, &sale.Code, &sale.CustomerID, &sale.CarrierID, &sale.EventID,
			&sale.TotalCents, &sale.FreightCents, &sale.FreightPaidBy, &sale.FreightPaymentStatus,
			&sale.Status, &sale.Date, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// DeleteSale undoes the whole sale: ledger entries are removed and managed
// stock from product lines is restored before the sale rows go away.
func (s *Store) DeleteSale(ctx context.Context, tenantID string, id string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id FROM sales WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, id).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT COALESCE(product_id,''), qty
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return err
	}
	type restore struct {
		productID string
		qty       int
	}
	restores := make([]restore, 0, 8)
	for rows.Next() {
		var r restore
		if err := rows.Scan(&r.productID, &r.qty); err != nil {
			rows.Close()
			return err
		}
		if r.productID != "" {
			restores = append(restores, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range restores {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock_qty = stock_qty + $3, updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND manages_stock = true
		`, tenantID, r.productID, r.qty); err != nil {
			return err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM transactions WHERE tenant_id = $1 AND sale_id = $2
	`, tenantID, id); err != nil {
		return err
	}
	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM sale_items WHERE sale_id = $1
	`, id); err != nil {
		return err
	}
	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM sales WHERE tenant_id = $1 AND id = $2
	`, tenantID, id); err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.TenantID == "" || tx.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if tx.ID == "" {
		tx.ID = xid.New("txn")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := insertTransaction(ctx, s.db, tx); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, tenantID string, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET kind = $3, status = $4, description = $5, amount_cents = $6, fee_applied = $7,
			category_id = $8, account_id = $9, due_date = $10, paid_at = $11
		WHERE tenant_id = $1 AND id = $2
	`, tx.TenantID, tx.ID, tx.Kind, tx.Status, tx.Description, tx.AmountCents, tx.FeeApplied,
		nullIfEmpty(tx.CategoryID), nullIfEmpty(tx.AccountID), tx.DueDate, nullTime(tx.PaidAt))
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
	updated := tx
	return &updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, tenantID string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
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

func (s *Store) ListTransactions(ctx context.Context, tenantID string, kind string, status string, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1
			AND ($2 = '' OR kind = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY due_date
		LIMIT $4
	`, tenantID, kind, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) ListTransactionsBySale(ctx context.Context, tenantID string, saleID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND sale_id = $2
		ORDER BY installment_number
	`, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 4)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) FindPendingIncomeByEvent(ctx context.Context, tenantID string, eventID string) (*domain.Transaction, error) {
	return s.findIncomeByEvent(ctx, tenantID, eventID, domain.TxStatusPending)
}

func (s *Store) FindPaidIncomeByEvent(ctx context.Context, tenantID string, eventID string) (*domain.Transaction, error) {
	return s.findIncomeByEvent(ctx, tenantID, eventID, domain.TxStatusPaid)
}

func (s *Store) findIncomeByEvent(ctx context.Context, tenantID string, eventID string, status string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND event_id = $2 AND kind = $3 AND status = $4
		LIMIT 1
	`, tenantID, eventID, domain.TxKindIncome, status)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) DeleteTransactionsByEvent(ctx context.Context, tenantID string, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE tenant_id = $1 AND event_id = $2
	`, tenantID, eventID)
	return err
}

func (s *Store) FindPaidExpenseByInvoice(ctx context.Context, tenantID string, invoiceID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE tenant_id = $1 AND purchase_invoice_id = $2 AND kind = $3 AND status = $4
		LIMIT 1
	`, tenantID, invoiceID, domain.TxKindExpense, domain.TxStatusPaid)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListReceivables(ctx context.Context, tenantID string, now time.Time) ([]domain.ReceivableEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tenant_id, t.kind, t.status, t.description, t.amount_cents, t.fee_applied,
			t.installment_number, t.installment_total, COALESCE(t.payment_method,''),
			COALESCE(t.category_id,''), COALESCE(t.customer_id,''), COALESCE(t.supplier_id,''),
			COALESCE(t.sale_id,''), COALESCE(t.event_id,''), COALESCE(t.quote_id,''),
			COALESCE(t.account_id,''), COALESCE(t.card_machine_id,''), COALESCE(t.purchase_invoice_id,''),
			t.date, t.due_date, t.paid_at, t.created_at,
			COALESCE(c.name,'')
		FROM transactions t
		LEFT JOIN customers c ON c.id = t.customer_id
		WHERE t.tenant_id = $1 AND t.kind = $2 AND t.status = $3
		ORDER BY t.due_date
	`, tenantID, domain.TxKindIncome, domain.TxStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ReceivableEntry, 0, 32)
	for rows.Next() {
		var tx domain.Transaction
		var paidAt sql.NullTime
		var customerName string
		err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.Kind, &tx.Status, &tx.Description, &tx.AmountCents, &tx.FeeApplied,
			&tx.InstallmentNumber, &tx.InstallmentTotal, &tx.PaymentMethod,
			&tx.CategoryID, &tx.CustomerID, &tx.SupplierID,
			&tx.SaleID, &tx.EventID, &tx.QuoteID,
			&tx.AccountID, &tx.CardMachineID, &tx.PurchaseInvoiceID,
			&tx.Date, &tx.DueDate, &paidAt, &tx.CreatedAt,
			&customerName)
		if err != nil {
			return nil, err
		}
		if paidAt.Valid {
			at := paidAt.Time.UTC()
			tx.PaidAt = &at
		}
		entries = append(entries, domain.ReceivableEntry{
			Transaction:  tx,
			CustomerName: customerName,
			Overdue:      tx.DueDate.Before(now),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListAgendaEvents(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.AgendaEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, COALESCE(customer_id,''), COALESCE(quote_id,''),
			service_ids, product_ids, expected_amount_cents,
			attendance_status, COALESCE(payment_status,''), COALESCE(notification_status,''),
			notification_acted_at, starts_at, created_at
		FROM agenda_events
		WHERE tenant_id = $1
			AND ($2::timestamptz IS NULL OR starts_at >= $2)
			AND ($3::timestamptz IS NULL OR starts_at <= $3)
		ORDER BY starts_at
	`, tenantID, nullTimeValue(from), nullTimeValue(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AgendaEvent, 0, 32)
	for rows.Next() {
		e, err := scanAgendaEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanAgendaEvent(row rowScanner) (domain.AgendaEvent, error) {
	var e domain.AgendaEvent
	var serviceIDs, productIDs []byte
	var actedAt sql.NullTime
	err := row.Scan(&e.ID, &e.TenantID, &e.Title, &e.CustomerID, &e.QuoteID,
		&serviceIDs, &productIDs, &e.ExpectedAmountCents,
		&e.AttendanceStatus, &e.PaymentStatus, &e.NotificationStatus,
		&actedAt, &e.StartsAt, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if len(serviceIDs) > 0 {
		if err := json.Unmarshal(serviceIDs, &e.ServiceIDs); err != nil {
			return e, err
		}
	}
	if len(productIDs) > 0 {
		if err := json.Unmarshal(productIDs, &e.ProductIDs); err != nil {
			return e, err
		}
	}
	if actedAt.Valid {
		at := actedAt.Time.UTC()
		e.NotificationActedAt = &at
	}
	return e, nil
}

func (s *Store) GetAgendaEventByID(ctx context.Context, tenantID string, id string) (*domain.AgendaEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, COALESCE(customer_id,''), COALESCE(quote_id,''),
			service_ids, product_ids, expected_amount_cents,
			attendance_status, COALESCE(payment_status,''), COALESCE(notification_status,''),
			notification_acted_at, starts_at, created_at
		FROM agenda_events
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	e, err := scanAgendaEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateAgendaEvent(ctx context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error) {
	if event.TenantID == "" || event.Title == "" {
		return nil, store.ErrInvalidInput
	}
	if event.ID == "" {
		event.ID = xid.New("evt")
	}
	if event.AttendanceStatus == "" {
		event.AttendanceStatus = domain.AttendanceScheduled
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	serviceIDs, err := json.Marshal(event.ServiceIDs)
	if err != nil {
		return nil, err
	}
	productIDs, err := json.Marshal(event.ProductIDs)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agenda_events (
			id, tenant_id, title, customer_id, quote_id, service_ids, product_ids,
			expected_amount_cents, attendance_status, payment_status, notification_status,
			notification_acted_at, starts_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, event.ID, event.TenantID, event.Title, nullIfEmpty(event.CustomerID), nullIfEmpty(event.QuoteID),
		serviceIDs, productIDs, event.ExpectedAmountCents, event.AttendanceStatus,
		nullIfEmpty(event.PaymentStatus), nullIfEmpty(event.NotificationStatus),
		nullTime(event.NotificationActedAt), event.StartsAt, event.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := event
	return &created, nil
}

func (s *Store) UpdateAgendaEvent(ctx context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error) {
	serviceIDs, err := json.Marshal(event.ServiceIDs)
	if err != nil {
		return nil, err
	}
	productIDs, err := json.Marshal(event.ProductIDs)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agenda_events
		SET title = $3, quote_id = $4, service_ids = $5, product_ids = $6,
			expected_amount_cents = $7, attendance_status = $8, payment_status = $9,
			notification_status = $10, notification_acted_at = $11, starts_at = $12
		WHERE tenant_id = $1 AND id = $2
	`, event.TenantID, event.ID, event.Title, nullIfEmpty(event.QuoteID), serviceIDs, productIDs,
		event.ExpectedAmountCents, event.AttendanceStatus, nullIfEmpty(event.PaymentStatus),
		nullIfEmpty(event.NotificationStatus), nullTime(event.NotificationActedAt), event.StartsAt)
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
	updated := event
	return &updated, nil
}

func (s *Store) DeleteAgendaEvent(ctx context.Context, tenantID string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM agenda_events WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
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

func (s *Store) MarkEventCompletedBySale(ctx context.Context, tenantID string, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agenda_events
		SET attendance_status = $3, payment_status = $4, notification_status = $5, notification_acted_at = $6
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, eventID, domain.AttendanceCompleted, domain.PaymentStatusPaid, domain.NotificationActedPDV, at)
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

// UpsertNotification keys on (tenant_id, event_id). A row that already moved
// past pending keeps its status; title, amounts and due date refresh.
func (s *Store) UpsertNotification(ctx context.Context, notification domain.Notification) (*domain.Notification, error) {
	if notification.TenantID == "" || notification.EventID == "" {
		return nil, store.ErrInvalidInput
	}
	if notification.ID == "" {
		notification.ID = xid.New("ntf")
	}
	if notification.Status == "" {
		notification.Status = domain.NotificationPending
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	var n domain.Notification
	var dueAt, actionAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (
			id, tenant_id, user_id, event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (tenant_id, event_id)
		DO UPDATE SET
			title = EXCLUDED.title,
			expected_amount_cents = EXCLUDED.expected_amount_cents,
			due_at = EXCLUDED.due_at,
			status = CASE WHEN notifications.status = 'PENDING' THEN EXCLUDED.status ELSE notifications.status END
		RETURNING id, tenant_id, COALESCE(user_id,''), event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
	`, notification.ID, notification.TenantID, nullIfEmpty(notification.UserID), notification.EventID,
		notification.Type, notification.Status, notification.Title,
		notification.ExpectedAmountCents, notification.ActionAmountCents,
		nullTime(notification.DueAt), nullTime(notification.ActionAt), notification.CreatedAt).Scan(
		&n.ID, &n.TenantID, &n.UserID, &n.EventID, &n.Type, &n.Status, &n.Title,
		&n.ExpectedAmountCents, &n.ActionAmountCents, &dueAt, &actionAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if dueAt.Valid {
		at := dueAt.Time.UTC()
		n.DueAt = &at
	}
	if actionAt.Valid {
		at := actionAt.Time.UTC()
		n.ActionAt = &at
	}
	return &n, nil
}

func (s *Store) GetNotificationByEventKey(ctx context.Context, tenantID string, eventID string) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, COALESCE(user_id,''), event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
		FROM notifications
		WHERE tenant_id = $1 AND event_id = $2
	`, tenantID, eventID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var dueAt, actionAt sql.NullTime
	err := row.Scan(&n.ID, &n.TenantID, &n.UserID, &n.EventID, &n.Type, &n.Status, &n.Title,
		&n.ExpectedAmountCents, &n.ActionAmountCents, &dueAt, &actionAt, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	if dueAt.Valid {
		at := dueAt.Time.UTC()
		n.DueAt = &at
	}
	if actionAt.Valid {
		at := actionAt.Time.UTC()
		n.ActionAt = &at
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID string, status string, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(user_id,''), event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
		FROM notifications
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListPendingNotifications loads the whole pending set; the reconcile sweep
// must see every row, so no page limit applies here.
func (s *Store) ListPendingNotifications(ctx context.Context, tenantID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(user_id,''), event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
		FROM notifications
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, tenantID, domain.NotificationPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, 32)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) UpdateNotificationStatus(ctx context.Context, tenantID string, id string, status string, actionAmountCents int64, at time.Time) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET status = $3,
			action_amount_cents = CASE WHEN $4 > 0 THEN $4 ELSE action_amount_cents END,
			action_at = $5
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, COALESCE(user_id,''), event_id, type, status, title,
			expected_amount_cents, action_amount_cents, due_at, action_at, created_at
	`, tenantID, id, status, actionAmountCents, at)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *Store) UpdateNotificationByEventKey(ctx context.Context, tenantID string, eventID string, status string, actionAmountCents int64, at time.Time, onlyIfPending bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $3,
			action_amount_cents = CASE WHEN $4 > 0 THEN $4 ELSE action_amount_cents END,
			action_at = $5
		WHERE tenant_id = $1 AND event_id = $2
			AND ($6 = false OR status = $7)
	`, tenantID, eventID, status, actionAmountCents, at, onlyIfPending, domain.NotificationPending)
	return err
}

func (s *Store) CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error) {
	if invoice.TenantID == "" || invoice.SupplierID == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusOpen
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	itemsJSON, err := json.Marshal(invoice.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_invoices (id, tenant_id, supplier_id, number, total_cents, status, items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, invoice.ID, invoice.TenantID, invoice.SupplierID, invoice.Number, invoice.TotalCents, invoice.Status, itemsJSON, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetPurchaseInvoiceByID(ctx context.Context, tenantID string, id string) (*domain.PurchaseInvoice, error) {
	var inv domain.PurchaseInvoice
	var itemsJSON []byte
	var receivedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, supplier_id, number, total_cents, status, items, created_at, received_at
		FROM purchase_invoices
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&inv.ID, &inv.TenantID, &inv.SupplierID, &inv.Number, &inv.TotalCents, &inv.Status, &itemsJSON, &inv.CreatedAt, &receivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
			return nil, err
		}
	}
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		inv.ReceivedAt = &at
	}
	return &inv, nil
}

func (s *Store) ListPurchaseInvoices(ctx context.Context, tenantID string, status string, limit int) ([]domain.PurchaseInvoice, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, supplier_id, number, total_cents, status, items, created_at, received_at
		FROM purchase_invoices
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.PurchaseInvoice, 0, limit)
	for rows.Next() {
		var inv domain.PurchaseInvoice
		var itemsJSON []byte
		var receivedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.SupplierID, &inv.Number, &inv.TotalCents, &inv.Status, &itemsJSON, &inv.CreatedAt, &receivedAt); err != nil {
			return nil, err
		}
		if len(itemsJSON) > 0 {
			if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
				return nil, err
			}
		}
		if receivedAt.Valid {
			at := receivedAt.Time.UTC()
			inv.ReceivedAt = &at
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) ReceivePurchaseInvoice(ctx context.Context, tenantID string, id string, receivedAt time.Time) (*domain.PurchaseInvoice, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_invoices
		SET status = $3, received_at = $4
		WHERE tenant_id = $1 AND id = $2 AND status <> $3
	`, tenantID, id, domain.InvoiceStatusReceived, receivedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetPurchaseInvoiceByID(ctx, tenantID, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrInvalidInput
	}
	return s.GetPurchaseInvoiceByID(ctx, tenantID, id)
}

func (s *Store) GetDailySummary(ctx context.Context, tenantID string, day time.Time) (domain.DailySummary, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	summary := domain.DailySummary{Date: dayStart.Format("2006-01-02")}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE tenant_id = $1 AND date >= $2 AND date < $3
	`, tenantID, dayStart, dayEnd).Scan(&summary.SalesCount, &summary.GrossSalesCents)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = $4 AND status = $5 AND paid_at >= $2 AND paid_at < $3), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = $4 AND status = $6 AND due_date >= $2 AND due_date < $3), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE kind = $7 AND date >= $2 AND date < $3), 0)
		FROM transactions
		WHERE tenant_id = $1
	`, tenantID, dayStart, dayEnd, domain.TxKindIncome, domain.TxStatusPaid, domain.TxStatusPending, domain.TxKindExpense).Scan(
		&summary.ReceivedCents, &summary.PendingCents, &summary.ExpensesCents)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM agenda_events
		WHERE tenant_id = $1 AND starts_at >= $2 AND starts_at < $3
	`, tenantID, dayStart, dayEnd).Scan(&summary.EventsScheduled)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE tenant_id = $1 AND status = $2
	`, tenantID, domain.NotificationPending).Scan(&summary.PendingAlertsCount)
	if err != nil {
		return summary, err
	}

	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, tenant_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Role, user.TenantID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE username = $2`, password, username)
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

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, COALESCE(tenant_id,''), active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.TenantID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
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

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

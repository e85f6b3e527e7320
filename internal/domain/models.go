package domain

import "time"

type Product struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	ProductType  string    `json:"product_type"`
	PriceCents   int64     `json:"price_cents"`
	AvgCostCents int64     `json:"avg_cost_cents"`
	ManagesStock bool      `json:"manages_stock"`
	StockQty     int       `json:"stock_qty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name         string `json:"name"`
	ProductType  string `json:"product_type"`
	PriceCents   int64  `json:"price_cents"`
	AvgCostCents int64  `json:"avg_cost_cents"`
	ManagesStock bool   `json:"manages_stock"`
	InitialStock int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	PriceCents   *int64  `json:"price_cents,omitempty"`
	AvgCostCents *int64  `json:"avg_cost_cents,omitempty"`
	ManagesStock *bool   `json:"manages_stock,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type Service struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ServiceCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

type Customer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Supplier struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type QuoteItem struct {
	Description string `json:"description"`
	Qty         int    `json:"qty"`
	PriceCents  int64  `json:"price_cents"`
}

type Quote struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Status     string      `json:"status"`
	TotalCents int64       `json:"total_cents"`
	Items      []QuoteItem `json:"items,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

type QuoteCreateRequest struct {
	CustomerID string      `json:"customer_id"`
	Items      []QuoteItem `json:"items"`
}

type Category struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Color        string    `json:"color,omitempty"`
	ReservedCode string    `json:"reserved_code,omitempty"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

// CardMachineRate maps one payment-method code to the machine's fee and
// settlement timing for that code.
type CardMachineRate struct {
	MethodCode     string  `json:"codigo_metodo"`
	FeeFraction    float64 `json:"taxa"`
	SettlementDays int     `json:"dias_recebimento"`
	SettlementMode string  `json:"modo_recebimento"`
}

// CardMachine carries a default settlement delay and mode; a rate row
// overrides both for its own method code.
type CardMachine struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Name           string            `json:"name"`
	SettlementDays int               `json:"dias_recebimento"`
	SettlementMode string            `json:"modo_recebimento"`
	Rates          []CardMachineRate `json:"rates"`
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
}

type CardMachineCreateRequest struct {
	Name           string            `json:"name"`
	SettlementDays int               `json:"dias_recebimento"`
	SettlementMode string            `json:"modo_recebimento"`
	Rates          []CardMachineRate `json:"rates"`
}

type FinancialAccount struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type SaleItem struct {
	ID             string `json:"id"`
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
	Description    string `json:"description"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
}

type Sale struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	Code                 string     `json:"code"`
	CustomerID           string     `json:"customer_id,omitempty"`
	CarrierID            string     `json:"carrier_id,omitempty"`
	EventID              string     `json:"event_id,omitempty"`
	TotalCents           int64      `json:"total_cents"`
	FreightCents         int64      `json:"freight_cents"`
	FreightPaidBy        string     `json:"freight_paid_by,omitempty"`
	FreightPaymentStatus string     `json:"freight_payment_status,omitempty"`
	Status               string     `json:"status"`
	Date                 time.Time  `json:"date"`
	CreatedAt            time.Time  `json:"created_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	Items                []SaleItem `json:"items"`
}

// PaymentEntry is one leg of a possibly split payment on a sale.
type PaymentEntry struct {
	Method        string `json:"metodo"`
	AmountCents   int64  `json:"valor_cents"`
	Installments  int    `json:"parcelas"`
	CardMachineID string `json:"maquina_id,omitempty"`
	AccountID     string `json:"conta_financeira_id,omitempty"`
}

type SaleItemRequest struct {
	ProductID      string `json:"product_id,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
	Description    string `json:"description,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleRequest struct {
	CustomerID           string            `json:"customer_id,omitempty"`
	CarrierID            string            `json:"carrier_id,omitempty"`
	EventID              string            `json:"event_id,omitempty"`
	Date                 string            `json:"date,omitempty"`
	Items                []SaleItemRequest `json:"items"`
	Payments             []PaymentEntry    `json:"pagamentos,omitempty"`
	PaymentMethod        string            `json:"metodo_pagamento,omitempty"`
	Installments         int               `json:"parcelas,omitempty"`
	CardMachineID        string            `json:"maquina_id,omitempty"`
	AccountID            string            `json:"conta_financeira_id,omitempty"`
	FreightCents         int64             `json:"freight_cents,omitempty"`
	FreightPaidBy        string            `json:"freight_paid_by,omitempty"`
	FreightPaymentStatus string            `json:"freight_payment_status,omitempty"`
}

type SaleResponse struct {
	Sale         Sale          `json:"sale"`
	Transactions []Transaction `json:"transactions"`
}

type Transaction struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	Kind              string     `json:"kind"`
	Status            string     `json:"status"`
	Description       string     `json:"description"`
	AmountCents       int64      `json:"amount_cents"`
	FeeApplied        float64    `json:"taxa_aplicada"`
	InstallmentNumber int        `json:"installment_number"`
	InstallmentTotal  int        `json:"installment_total"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	CategoryID        string     `json:"category_id,omitempty"`
	CustomerID        string     `json:"customer_id,omitempty"`
	SupplierID        string     `json:"supplier_id,omitempty"`
	SaleID            string     `json:"sale_id,omitempty"`
	EventID           string     `json:"event_id,omitempty"`
	QuoteID           string     `json:"quote_id,omitempty"`
	AccountID         string     `json:"account_id,omitempty"`
	CardMachineID     string     `json:"card_machine_id,omitempty"`
	PurchaseInvoiceID string     `json:"purchase_invoice_id,omitempty"`
	Date              time.Time  `json:"date"`
	DueDate           time.Time  `json:"due_date"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type TransactionCreateRequest struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
	CategoryID    string `json:"category_id,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	SupplierID    string `json:"supplier_id,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Date          string `json:"date,omitempty"`
	DueDate       string `json:"due_date,omitempty"`
}

type TransactionUpdateRequest struct {
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type AgendaEvent struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	Title               string     `json:"title"`
	CustomerID          string     `json:"customer_id,omitempty"`
	QuoteID             string     `json:"quote_id,omitempty"`
	ServiceIDs          []string   `json:"service_ids,omitempty"`
	ProductIDs          []string   `json:"product_ids,omitempty"`
	ExpectedAmountCents int64      `json:"expected_amount_cents"`
	AttendanceStatus    string     `json:"attendance_status"`
	PaymentStatus       string     `json:"payment_status,omitempty"`
	NotificationStatus  string     `json:"notification_status,omitempty"`
	NotificationActedAt *time.Time `json:"notification_acted_at,omitempty"`
	StartsAt            time.Time  `json:"starts_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

type AgendaEventCreateRequest struct {
	Title      string   `json:"title"`
	CustomerID string   `json:"customer_id,omitempty"`
	QuoteID    string   `json:"quote_id,omitempty"`
	ServiceIDs []string `json:"service_ids,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
	StartsAt   string   `json:"starts_at"`
}

type AgendaEventUpdateRequest struct {
	Title      *string   `json:"title,omitempty"`
	QuoteID    *string   `json:"quote_id,omitempty"`
	ServiceIDs *[]string `json:"service_ids,omitempty"`
	ProductIDs *[]string `json:"product_ids,omitempty"`
	StartsAt   *string   `json:"starts_at,omitempty"`
	Attendance *string   `json:"attendance_status,omitempty"`
}

type Notification struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	UserID              string     `json:"user_id,omitempty"`
	EventID             string     `json:"event_id"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	Title               string     `json:"title"`
	ExpectedAmountCents int64      `json:"expected_amount_cents"`
	ActionAmountCents   int64      `json:"action_amount_cents,omitempty"`
	DueAt               *time.Time `json:"due_at,omitempty"`
	ActionAt            *time.Time `json:"action_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

type PurchaseInvoiceItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseInvoice struct {
	ID         string                `json:"id"`
	TenantID   string                `json:"tenant_id"`
	SupplierID string                `json:"supplier_id"`
	Number     string                `json:"number"`
	TotalCents int64                 `json:"total_cents"`
	Status     string                `json:"status"`
	Items      []PurchaseInvoiceItem `json:"items"`
	CreatedAt  time.Time             `json:"created_at"`
	ReceivedAt *time.Time            `json:"received_at,omitempty"`
}

type PurchaseInvoiceCreateRequest struct {
	SupplierID string                `json:"supplier_id"`
	Number     string                `json:"number"`
	Items      []PurchaseInvoiceItem `json:"items"`
}

type ReceivableEntry struct {
	Transaction  Transaction `json:"transaction"`
	CustomerName string      `json:"customer_name,omitempty"`
	Overdue      bool        `json:"overdue"`
}

type DueDigestBucket struct {
	Label      string        `json:"label"`
	TotalCents int64         `json:"total_cents"`
	Items      []Transaction `json:"items"`
}

type DueDigest struct {
	Overdue   DueDigestBucket `json:"overdue"`
	DueToday  DueDigestBucket `json:"due_today"`
	DueSoon   DueDigestBucket `json:"due_soon"`
	Generated time.Time       `json:"generated_at"`
}

type DailySummary struct {
	Date               string `json:"date"`
	SalesCount         int64  `json:"sales_count"`
	GrossSalesCents    int64  `json:"gross_sales_cents"`
	ReceivedCents      int64  `json:"received_cents"`
	PendingCents       int64  `json:"pending_cents"`
	ExpensesCents      int64  `json:"expenses_cents"`
	EventsScheduled    int64  `json:"events_scheduled"`
	PendingAlertsCount int64  `json:"pending_alerts_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   string
	TenantID string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

const (
	MethodDinheiro = "DINHEIRO"
	MethodCheque   = "CHEQUE"
	MethodCredito  = "CREDITO"
	MethodDebito   = "DEBITO"
	MethodPix      = "PIX"
	MethodVoucher  = "VOUCHER"
	MethodCarne    = "CARNE"
	MethodBoleto   = "BOLETO"
)

const (
	SettlementParcelado  = "PARCELADO"
	SettlementAntecipado = "ANTECIPADO"
)

const (
	TxKindIncome  = "income"
	TxKindExpense = "expense"

	TxStatusPending = "pending"
	TxStatusPaid    = "paid"
)

const (
	SaleStatusCompleted = "COMPLETED"

	FreightPaidByCliente = "CLIENTE"
	FreightPaidByEmpresa = "EMPRESA"
)

const (
	AttendanceScheduled = "SCHEDULED"
	AttendanceConfirmed = "CONFIRMED"
	AttendanceCompleted = "COMPLETED"
	AttendanceCancelled = "CANCELLED"
	AttendanceNoShow    = "NO_SHOW"

	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
)

const (
	NotificationPending   = "PENDING"
	NotificationConfirmed = "CONFIRMED"
	NotificationCancelled = "CANCELLED"
	NotificationActedPDV  = "ACTED_PDV"
	NotificationDismissed = "DISMISSED"
)

const (
	NotificationTypeAgendaEvent   = "AGENDA_EVENT"
	NotificationTypePaymentAlert  = "PAYMENT_ALERT"
	NotificationTypePricingNeeded = "PRICING_NEEDED"
	NotificationTypePaymentReview = "PAYMENT_REVIEW"
)

const (
	InvoiceStatusOpen     = "OPEN"
	InvoiceStatusReceived = "RECEIVED"
)

const (
	ProductTypeRevenda = "REVENDA"
	ProductTypeInterno = "INTERNO"
)

const (
	QuoteApproved = "APPROVED"
	QuoteDraft    = "DRAFT"
)

// PayAlertPrefix namespaces payment-alert notification keys so they never
// collide with the agenda notification for the same event.
const PayAlertPrefix = "pay_alert_"

const (
	CategoryCodeVendas = "SYS_VENDAS"
	CategoryCodeCMV    = "SYS_CMV"
	CategoryCodeFretes = "SYS_FRETES"
)

package store

import (
	"context"
	"errors"
	"time"

	"meunegocio/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
)

// SaleBundle is everything one sale writes atomically: the sale row, its
// ledger entries and the stock decrements for managed products.
type SaleBundle struct {
	Sale            domain.Sale
	Transactions    []domain.Transaction
	StockDecrements map[string]int
}

type Repository interface {
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, tenantID string, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, tenantID string, productID string, delta int) error
	UpdateProductCost(ctx context.Context, tenantID string, productID string, avgCostCents int64) error

	ListServices(ctx context.Context, tenantID string) ([]domain.Service, error)
	GetServiceByID(ctx context.Context, tenantID string, id string) (*domain.Service, error)
	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)

	ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, tenantID string, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListSuppliers(ctx context.Context, tenantID string) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)

	ListQuotes(ctx context.Context, tenantID string) ([]domain.Quote, error)
	GetQuoteByID(ctx context.Context, tenantID string, id string) (*domain.Quote, error)
	CreateQuote(ctx context.Context, quote domain.Quote) (*domain.Quote, error)
	UpdateQuoteStatus(ctx context.Context, tenantID string, id string, status string) (*domain.Quote, error)

	ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	FindOrCreateCategory(ctx context.Context, tenantID string, reservedCode string, name string, kind string) (*domain.Category, error)

	ListCardMachines(ctx context.Context, tenantID string) ([]domain.CardMachine, error)
	GetCardMachineByID(ctx context.Context, tenantID string, id string) (*domain.CardMachine, error)
	CreateCardMachine(ctx context.Context, machine domain.CardMachine) (*domain.CardMachine, error)

	ListFinancialAccounts(ctx context.Context, tenantID string) ([]domain.FinancialAccount, error)
	GetDefaultFinancialAccount(ctx context.Context, tenantID string) (*domain.FinancialAccount, error)

	CreateSale(ctx context.Context, bundle SaleBundle) (*domain.Sale, []domain.Transaction, error)
	GetSaleByID(ctx context.Context, tenantID string, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	DeleteSale(ctx context.Context, tenantID string, id string) error

	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransactionByID(ctx context.Context, tenantID string, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, tenantID string, id string) error
	ListTransactions(ctx context.Context, tenantID string, kind string, status string, limit int) ([]domain.Transaction, error)
	ListTransactionsBySale(ctx context.Context, tenantID string, saleID string) ([]domain.Transaction, error)
	FindPendingIncomeByEvent(ctx context.Context, tenantID string, eventID string) (*domain.Transaction, error)
	FindPaidIncomeByEvent(ctx context.Context, tenantID string, eventID string) (*domain.Transaction, error)
	DeleteTransactionsByEvent(ctx context.Context, tenantID string, eventID string) error
	FindPaidExpenseByInvoice(ctx context.Context, tenantID string, invoiceID string) (*domain.Transaction, error)
	ListReceivables(ctx context.Context, tenantID string, now time.Time) ([]domain.ReceivableEntry, error)

	ListAgendaEvents(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.AgendaEvent, error)
	GetAgendaEventByID(ctx context.Context, tenantID string, id string) (*domain.AgendaEvent, error)
	CreateAgendaEvent(ctx context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error)
	UpdateAgendaEvent(ctx context.Context, event domain.AgendaEvent) (*domain.AgendaEvent, error)
	DeleteAgendaEvent(ctx context.Context, tenantID string, id string) error
	MarkEventCompletedBySale(ctx context.Context, tenantID string, eventID string, at time.Time) error

	UpsertNotification(ctx context.Context, notification domain.Notification) (*domain.Notification, error)
	GetNotificationByEventKey(ctx context.Context, tenantID string, eventID string) (*domain.Notification, error)
	ListNotifications(ctx context.Context, tenantID string, status string, limit int) ([]domain.Notification, error)
	ListPendingNotifications(ctx context.Context, tenantID string) ([]domain.Notification, error)
	UpdateNotificationStatus(ctx context.Context, tenantID string, id string, status string, actionAmountCents int64, at time.Time) (*domain.Notification, error)
	UpdateNotificationByEventKey(ctx context.Context, tenantID string, eventID string, status string, actionAmountCents int64, at time.Time, onlyIfPending bool) error

	CreatePurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) (*domain.PurchaseInvoice, error)
	GetPurchaseInvoiceByID(ctx context.Context, tenantID string, id string) (*domain.PurchaseInvoice, error)
	ListPurchaseInvoices(ctx context.Context, tenantID string, status string, limit int) ([]domain.PurchaseInvoice, error)
	ReceivePurchaseInvoice(ctx context.Context, tenantID string, id string, receivedAt time.Time) (*domain.PurchaseInvoice, error)

	GetDailySummary(ctx context.Context, tenantID string, day time.Time) (domain.DailySummary, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

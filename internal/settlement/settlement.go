package settlement

import (
	"fmt"
	"math"
	"time"

	"meunegocio/backend/internal/domain"
)

// Methods that can be split into more than one receivable entry.
var installableMethods = map[string]bool{
	domain.MethodCredito: true,
	domain.MethodCarne:   true,
	domain.MethodBoleto:  true,
	domain.MethodCheque:  true,
}

const defaultInstallmentDelayDays = 30

// ResolveMethodCode maps a payment method plus installment count to the
// fee-table code a card machine keys its rates by. Methods that never carry
// a machine fee resolve to the empty string.
func ResolveMethodCode(method string, installments int) string {
	switch method {
	case domain.MethodPix, domain.MethodVoucher, domain.MethodDebito:
		return method
	case domain.MethodCredito:
		if installments <= 0 {
			installments = 1
		}
		return fmt.Sprintf("%s_%dX", domain.MethodCredito, installments)
	default:
		return ""
	}
}

// LookupFee returns the fee fraction the machine charges for the given code.
// The first matching rate row wins; an absent code means no fee.
func LookupFee(code string, machine *domain.CardMachine) float64 {
	if code == "" || machine == nil {
		return 0
	}
	for _, rate := range machine.Rates {
		if rate.MethodCode == code {
			return rate.FeeFraction
		}
	}
	return 0
}

// LookupRate returns the full rate row for the code, if the machine has one.
func LookupRate(code string, machine *domain.CardMachine) (domain.CardMachineRate, bool) {
	if code == "" || machine == nil {
		return domain.CardMachineRate{}, false
	}
	for _, rate := range machine.Rates {
		if rate.MethodCode == code {
			return rate, true
		}
	}
	return domain.CardMachineRate{}, false
}

// Installable reports whether the method supports more than one installment.
func Installable(method string) bool {
	return installableMethods[method]
}

type ScheduleInput struct {
	AmountCents         int64
	Method              string
	Installments        int
	HasMachine          bool
	FeeFraction         float64
	SettlementDelayDays int
	SettlementMode      string
	SaleDate            time.Time
}

// EntryDraft is one ledger entry the scheduler decided to create. The caller
// fills in description, category and links before persisting.
type EntryDraft struct {
	AmountCents       int64
	Status            string
	DueDate           time.Time
	InstallmentNumber int
	InstallmentTotal  int
	FeeApplied        float64
}

// Schedule turns one payment leg into its receivable entries. Branches are
// checked in order: immediate cash, installment plans, single machine
// settlement, then the plain fallback.
func Schedule(in ScheduleInput) []EntryDraft {
	n := in.Installments
	if n <= 0 {
		n = 1
	}

	if in.Method == domain.MethodDinheiro || (in.Method == domain.MethodCheque && n <= 1) {
		return []EntryDraft{{
			AmountCents:       in.AmountCents,
			Status:            domain.TxStatusPaid,
			DueDate:           in.SaleDate,
			InstallmentNumber: 1,
			InstallmentTotal:  1,
		}}
	}

	if n > 1 && Installable(in.Method) {
		per := float64(in.AmountCents) / float64(n) * (1 - in.FeeFraction)

		if in.HasMachine && in.SettlementMode == domain.SettlementAntecipado {
			return []EntryDraft{{
				AmountCents:       int64(math.Round(per * float64(n))),
				Status:            domain.TxStatusPending,
				DueDate:           in.SaleDate.AddDate(0, 0, in.SettlementDelayDays),
				InstallmentNumber: 1,
				InstallmentTotal:  1,
				FeeApplied:        in.FeeFraction,
			}}
		}

		delay := defaultInstallmentDelayDays
		if in.HasMachine {
			delay = in.SettlementDelayDays
		}
		entries := make([]EntryDraft, 0, n)
		for i := 1; i <= n; i++ {
			entries = append(entries, EntryDraft{
				AmountCents:       int64(math.Round(per)),
				Status:            domain.TxStatusPending,
				DueDate:           in.SaleDate.AddDate(0, 0, i*delay),
				InstallmentNumber: i,
				InstallmentTotal:  n,
				FeeApplied:        in.FeeFraction,
			})
		}
		return entries
	}

	if in.HasMachine {
		net := int64(math.Round(float64(in.AmountCents) * (1 - in.FeeFraction)))
		return []EntryDraft{{
			AmountCents:       net,
			Status:            domain.TxStatusPending,
			DueDate:           in.SaleDate.AddDate(0, 0, in.SettlementDelayDays),
			InstallmentNumber: 1,
			InstallmentTotal:  1,
			FeeApplied:        in.FeeFraction,
		}}
	}

	return []EntryDraft{{
		AmountCents:       in.AmountCents,
		Status:            domain.TxStatusPaid,
		DueDate:           in.SaleDate,
		InstallmentNumber: 1,
		InstallmentTotal:  1,
	}}
}

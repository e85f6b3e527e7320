package settlement

import (
	"testing"
	"time"

	"meunegocio/backend/internal/domain"
)

func testMachine() *domain.CardMachine {
	return &domain.CardMachine{
		ID:   "mch-1",
		Name: "Maquininha",
		Rates: []domain.CardMachineRate{
			{MethodCode: "DEBITO", FeeFraction: 0.02, SettlementDays: 1, SettlementMode: domain.SettlementParcelado},
			{MethodCode: "CREDITO_1X", FeeFraction: 0.03, SettlementDays: 30, SettlementMode: domain.SettlementParcelado},
			{MethodCode: "CREDITO_3X", FeeFraction: 0.05, SettlementDays: 5, SettlementMode: domain.SettlementParcelado},
		},
	}
}

func TestResolveMethodCode(t *testing.T) {
	cases := []struct {
		method       string
		installments int
		want         string
	}{
		{domain.MethodPix, 1, "PIX"},
		{domain.MethodVoucher, 1, "VOUCHER"},
		{domain.MethodDebito, 3, "DEBITO"},
		{domain.MethodCredito, 1, "CREDITO_1X"},
		{domain.MethodCredito, 3, "CREDITO_3X"},
		{domain.MethodCredito, 0, "CREDITO_1X"},
		{domain.MethodCredito, -2, "CREDITO_1X"},
		{domain.MethodDinheiro, 1, ""},
		{domain.MethodCarne, 4, ""},
		{domain.MethodBoleto, 2, ""},
		{domain.MethodCheque, 3, ""},
	}
	for _, tc := range cases {
		if got := ResolveMethodCode(tc.method, tc.installments); got != tc.want {
			t.Fatalf("ResolveMethodCode(%s, %d) = %q, want %q", tc.method, tc.installments, got, tc.want)
		}
	}
}

func TestLookupFee(t *testing.T) {
	machine := testMachine()

	if fee := LookupFee("CREDITO_3X", machine); fee != 0.05 {
		t.Fatalf("expected 0.05, got %v", fee)
	}
	if fee := LookupFee("CREDITO_12X", machine); fee != 0 {
		t.Fatalf("unknown code must yield zero fee, got %v", fee)
	}
	if fee := LookupFee("", machine); fee != 0 {
		t.Fatalf("empty code must yield zero fee, got %v", fee)
	}
	if fee := LookupFee("DEBITO", nil); fee != 0 {
		t.Fatalf("nil machine must yield zero fee, got %v", fee)
	}
}

func TestLookupFeeFirstRowWins(t *testing.T) {
	machine := testMachine()
	machine.Rates = append([]domain.CardMachineRate{
		{MethodCode: "DEBITO", FeeFraction: 0.015, SettlementDays: 2},
	}, machine.Rates...)

	if fee := LookupFee("DEBITO", machine); fee != 0.015 {
		t.Fatalf("expected first matching row to win, got %v", fee)
	}
}

func TestScheduleCashIsImmediate(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents: 5000,
		Method:      domain.MethodDinheiro,
		SaleDate:    saleDate,
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != domain.TxStatusPaid {
		t.Fatalf("cash must settle paid, got %s", e.Status)
	}
	if !e.DueDate.Equal(saleDate) {
		t.Fatalf("cash due date must be the sale date, got %v", e.DueDate)
	}
	if e.AmountCents != 5000 || e.FeeApplied != 0 {
		t.Fatalf("cash must keep the gross amount with no fee: %+v", e)
	}
}

func TestScheduleSingleChequeIsImmediate(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:  7000,
		Method:       domain.MethodCheque,
		Installments: 1,
		SaleDate:     saleDate,
	})

	if len(entries) != 1 || entries[0].Status != domain.TxStatusPaid {
		t.Fatalf("single cheque must behave like cash: %+v", entries)
	}
}

func TestScheduleCreditInstallmentsWithMachine(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:         10000,
		Method:              domain.MethodCredito,
		Installments:        3,
		HasMachine:          true,
		FeeFraction:         0.05,
		SettlementDelayDays: 5,
		SettlementMode:      domain.SettlementParcelado,
		SaleDate:            saleDate,
	})

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.AmountCents != 3167 {
			t.Fatalf("entry %d: expected 3167 cents, got %d", i+1, e.AmountCents)
		}
		if e.Status != domain.TxStatusPending {
			t.Fatalf("entry %d: expected pending, got %s", i+1, e.Status)
		}
		wantDue := saleDate.AddDate(0, 0, (i+1)*5)
		if !e.DueDate.Equal(wantDue) {
			t.Fatalf("entry %d: expected due %v, got %v", i+1, wantDue, e.DueDate)
		}
		if e.InstallmentNumber != i+1 || e.InstallmentTotal != 3 {
			t.Fatalf("entry %d: bad installment tags %d/%d", i+1, e.InstallmentNumber, e.InstallmentTotal)
		}
		if e.FeeApplied != 0.05 {
			t.Fatalf("entry %d: expected fee 0.05, got %v", i+1, e.FeeApplied)
		}
	}
}

func TestScheduleCreditAntecipadoLumpsSettlement(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:         10000,
		Method:              domain.MethodCredito,
		Installments:        3,
		HasMachine:          true,
		FeeFraction:         0.05,
		SettlementDelayDays: 5,
		SettlementMode:      domain.SettlementAntecipado,
		SaleDate:            saleDate,
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.AmountCents != 9500 {
		t.Fatalf("expected 9500 cents, got %d", e.AmountCents)
	}
	if e.InstallmentNumber != 1 || e.InstallmentTotal != 1 {
		t.Fatalf("anticipated settlement is a single entry, got %d/%d", e.InstallmentNumber, e.InstallmentTotal)
	}
	wantDue := saleDate.AddDate(0, 0, 5)
	if !e.DueDate.Equal(wantDue) {
		t.Fatalf("expected due %v, got %v", wantDue, e.DueDate)
	}
}

func TestScheduleCarneWithoutMachine(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:  10000,
		Method:       domain.MethodCarne,
		Installments: 4,
		SaleDate:     saleDate,
	})

	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	var total int64
	for i, e := range entries {
		if e.AmountCents != 2500 {
			t.Fatalf("entry %d: expected 2500, got %d", i+1, e.AmountCents)
		}
		if e.FeeApplied != 0 {
			t.Fatalf("entry %d: carne carries no fee, got %v", i+1, e.FeeApplied)
		}
		wantDue := saleDate.AddDate(0, 0, (i+1)*30)
		if !e.DueDate.Equal(wantDue) {
			t.Fatalf("entry %d: expected due %v, got %v", i+1, wantDue, e.DueDate)
		}
		total += e.AmountCents
	}
	if total != 10000 {
		t.Fatalf("carne entries must add up to the gross, got %d", total)
	}
}

func TestScheduleDebitThroughMachine(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:         10000,
		Method:              domain.MethodDebito,
		Installments:        1,
		HasMachine:          true,
		FeeFraction:         0.02,
		SettlementDelayDays: 1,
		SaleDate:            saleDate,
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.AmountCents != 9800 {
		t.Fatalf("expected 9800 cents net, got %d", e.AmountCents)
	}
	if e.Status != domain.TxStatusPending {
		t.Fatalf("machine settlement is pending until it lands, got %s", e.Status)
	}
	if !e.DueDate.Equal(saleDate.AddDate(0, 0, 1)) {
		t.Fatalf("expected next-day settlement, got %v", e.DueDate)
	}
}

func TestSchedulePixWithoutMachineFallsBack(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents: 4200,
		Method:      domain.MethodPix,
		SaleDate:    saleDate,
	})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != domain.TxStatusPaid || e.AmountCents != 4200 {
		t.Fatalf("pix with no machine settles immediately at gross: %+v", e)
	}
	if !e.DueDate.Equal(saleDate) {
		t.Fatalf("expected due on sale date, got %v", e.DueDate)
	}
}

func TestScheduleZeroInstallmentsTreatedAsOne(t *testing.T) {
	saleDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	entries := Schedule(ScheduleInput{
		AmountCents:  3000,
		Method:       domain.MethodBoleto,
		Installments: 0,
		SaleDate:     saleDate,
	})

	if len(entries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(entries))
	}
	if entries[0].InstallmentTotal != 1 {
		t.Fatalf("installment total must normalize to 1, got %d", entries[0].InstallmentTotal)
	}
}

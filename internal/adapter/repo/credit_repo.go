package repo

import (
	"context"
	"fmt"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger. Deductions are a single
// conditional UPDATE, so concurrent deductions can never overdraw.
type CreditLedgerPG struct {
	sql infra.SQLExecutor
}

func NewCreditLedger(sql infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{sql: sql}
}

func (l *CreditLedgerPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select credit balance: %w", err)
	}
	return balance, nil
}

func (l *CreditLedgerPG) Deduct(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QDeductCredits, userID, amount, reason).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrInsufficientCredits
		}
		return fmt.Errorf("deduct credits: %w", err)
	}
	return nil
}

func (l *CreditLedgerPG) Add(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QAddCredits, userID, amount, reason).Scan(&balance); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return nil
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)

package processor

import (
	"context"
	"fmt"
	"log/slog"

	"snb_ledger/internal/domain"
)

// ListEligibleSources returns the customer's current accounts that can cover one repayment of
// the mortgage, in ledger order. An empty result is not an error.
func (p *LedgerProcessor) ListEligibleSources(ctx context.Context, customer domain.Customer, mortgageID int) ([]*domain.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mortgage, err := p.ownedAccount(ctx, customer, mortgageID)
	if err != nil {
		return nil, err
	}
	return p.eligibleSources(ctx, mortgage)
}

// PayMonthly moves one monthly repayment from sourceID into the mortgage. Both accounts are
// updated and persisted together or not at all.
func (p *LedgerProcessor) PayMonthly(ctx context.Context, customer domain.Customer, mortgageID, sourceID int) (domain.PaymentOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mortgage, err := p.ownedAccount(ctx, customer, mortgageID)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	if mortgage.Kind == domain.KindMortgage && mortgage.Mortgage.MonthsRemaining <= 0 {
		return domain.PaymentOutcome{}, fmt.Errorf("account %d: %w", mortgage.ID, domain.ErrMortgageSettled)
	}

	eligible, err := p.eligibleSources(ctx, mortgage)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	if len(eligible) == 0 {
		return domain.PaymentOutcome{}, domain.ErrNoEligibleSource
	}

	var source *domain.Account
	for _, a := range eligible {
		if a.ID == sourceID {
			source = a
			break
		}
	}
	if source == nil {
		return domain.PaymentOutcome{}, fmt.Errorf("account %d: %w", sourceID, domain.ErrInvalidSelection)
	}

	outcome, err := domain.ApplyMonthlyPayment(mortgage, source)
	if err != nil {
		return domain.PaymentOutcome{}, err
	}
	if err := p.update(ctx, source, mortgage); err != nil {
		return domain.PaymentOutcome{}, err
	}

	p.logger.InfoContext(ctx, "Mortgage payment completed",
		slog.Int("mortgage_id", mortgage.ID),
		slog.Int("source_id", source.ID),
		slog.String("paid", outcome.Paid.String()),
		slog.Int("months_remaining", outcome.MonthsRemaining))
	return outcome, nil
}

func (p *LedgerProcessor) eligibleSources(ctx context.Context, mortgage *domain.Account) ([]*domain.Account, error) {
	if mortgage.Kind != domain.KindMortgage {
		return nil, fmt.Errorf("%w: payment sources for %s account", domain.ErrOperationNotSupported, mortgage.Kind)
	}

	owned, err := p.accountRepo.GetByCustomer(ctx, mortgage.Owner())
	if err != nil {
		return nil, err
	}

	eligible := make([]*domain.Account, 0, len(owned))
	for _, a := range owned {
		if domain.IsEligibleSource(mortgage, a) {
			eligible = append(eligible, a)
		}
	}
	return eligible, nil
}

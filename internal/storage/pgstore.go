package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"snb_ledger/internal/domain"
	"snb_ledger/internal/repository"
)

// PostgresStore persists the same records as JSONStore into two tables. Saves are full
// replacements inside one transaction, matching the file semantics.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ repository.Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			position INTEGER NOT NULL,
			number INTEGER PRIMARY KEY,
			c_name TEXT NOT NULL,
			c_pass TEXT NOT NULL,
			pounds_balance BIGINT NOT NULL,
			pence_balance BIGINT NOT NULL,
			category TEXT NOT NULL,
			foreign_exchange_fee INTEGER,
			interest_rate INTEGER,
			monthly_repayment_pounds BIGINT,
			monthly_repayment_pence BIGINT,
			months_remaining INTEGER,
			flagged_for_missed_payment BOOLEAN
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_c_pass ON accounts(c_pass)`,
		`CREATE TABLE IF NOT EXISTS customer_records (
			password TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresStore) LoadAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, c_name, c_pass, pounds_balance, pence_balance, category,
			foreign_exchange_fee, interest_rate, monthly_repayment_pounds,
			monthly_repayment_pence, months_remaining, flagged_for_missed_payment
		FROM accounts
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var records []accountRecord
	for rows.Next() {
		var rec accountRecord
		if err := rows.Scan(
			&rec.Number, &rec.CustomerName, &rec.CustomerPass,
			&rec.PoundsBalance, &rec.PenceBalance, &rec.Category,
			&rec.ForeignExchangeFee, &rec.InterestRate, &rec.MonthlyRepaymentPounds,
			&rec.MonthlyRepaymentPence, &rec.MonthsRemaining, &rec.FlaggedForMissedPayment,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}

	return fromRecords(s.logger, records)
}

func (s *PostgresStore) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	return s.replaceAll(ctx, "accounts", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO accounts (position, number, c_name, c_pass, pounds_balance, pence_balance,
				category, foreign_exchange_fee, interest_rate, monthly_repayment_pounds,
				monthly_repayment_pence, months_remaining, flagged_for_missed_payment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, rec := range toRecords(accounts) {
			if _, err := stmt.ExecContext(ctx,
				i, rec.Number, rec.CustomerName, rec.CustomerPass,
				rec.PoundsBalance, rec.PenceBalance, rec.Category,
				rec.ForeignExchangeFee, rec.InterestRate, rec.MonthlyRepaymentPounds,
				rec.MonthlyRepaymentPence, rec.MonthsRemaining, rec.FlaggedForMissedPayment,
			); err != nil {
				return fmt.Errorf("account %d: %w", rec.Number, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) LoadCustomers(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT password, name FROM customer_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]string)
	for rows.Next() {
		var password, name string
		if err := rows.Scan(&password, &name); err != nil {
			return nil, fmt.Errorf("failed to scan customer record: %w", err)
		}
		records[password] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customer records: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) SaveCustomers(ctx context.Context, records map[string]string) error {
	return s.replaceAll(ctx, "customer_records", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO customer_records (password, name) VALUES ($1, $2)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for password, name := range records {
			if _, err := stmt.ExecContext(ctx, password, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// replaceAll empties table and refills it with insert, committing only if every row lands.
func (s *PostgresStore) replaceAll(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

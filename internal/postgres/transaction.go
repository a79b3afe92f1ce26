package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/oss"
	"github.com/dukerupert/skatt/internal/service"
)

// TransactionStore implements service.TransactionRecorder (writes) and
// oss.TransactionStore (reads) over the tax_transactions table.
type TransactionStore struct {
	db DB
}

var (
	_ oss.TransactionStore        = (*TransactionStore)(nil)
	_ service.TransactionRecorder = (*TransactionStore)(nil)
)

// NewTransactionStore creates a PostgreSQL-backed transaction store.
func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// RecordTransactions persists a batch of calculation records for one order.
func (s *TransactionStore) RecordTransactions(ctx context.Context, txns []domain.TaxTransaction) error {
	for _, txn := range txns {
		taxable, err := pgNumeric(txn.TaxableAmount)
		if err != nil {
			return fmt.Errorf("invalid taxable amount %s: %w", txn.TaxableAmount, err)
		}
		taxAmount, err := pgNumeric(txn.TaxAmount)
		if err != nil {
			return fmt.Errorf("invalid tax amount %s: %w", txn.TaxAmount, err)
		}
		vatRate, err := pgNumeric(txn.VatRate)
		if err != nil {
			return fmt.Errorf("invalid VAT rate %s: %w", txn.VatRate, err)
		}

		_, err = s.db.Exec(ctx,
			`INSERT INTO tax_transactions (id, order_id, destination_country, scheme, currency,
				taxable_amount, tax_amount, vat_rate, reverse_charge, calculated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pgUUID(txn.ID), pgUUID(txn.OrderID), txn.DestinationCountry, string(txn.Scheme),
			txn.Currency, taxable, taxAmount, vatRate, txn.ReverseCharge, txn.CalculatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to record tax transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// TransactionsForPeriod returns every transaction whose calculation time
// falls inside the query window, for the given scheme.
func (s *TransactionStore) TransactionsForPeriod(ctx context.Context, query oss.Query) ([]domain.TaxTransaction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, order_id, destination_country, scheme, currency,
			taxable_amount, tax_amount, vat_rate, reverse_charge, calculated_at
		 FROM tax_transactions
		 WHERE scheme = $1 AND calculated_at >= $2 AND calculated_at < $3
		 ORDER BY calculated_at`,
		string(query.Scheme), query.From, query.To,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.TaxTransaction
	for rows.Next() {
		var (
			txn                        domain.TaxTransaction
			id, orderID                pgtype.UUID
			scheme                     string
			taxable, taxAmount, vatRate pgtype.Numeric
		)
		err := rows.Scan(
			&id, &orderID, &txn.DestinationCountry, &scheme, &txn.Currency,
			&taxable, &taxAmount, &vatRate, &txn.ReverseCharge, &txn.CalculatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tax transaction: %w", err)
		}

		txn.ID = uuidFromPg(id)
		txn.OrderID = uuidFromPg(orderID)
		txn.Scheme = domain.OssScheme(scheme)
		if txn.TaxableAmount, err = decimalFromPg(taxable); err != nil {
			return nil, fmt.Errorf("invalid stored taxable amount: %w", err)
		}
		if txn.TaxAmount, err = decimalFromPg(taxAmount); err != nil {
			return nil, fmt.Errorf("invalid stored tax amount: %w", err)
		}
		if txn.VatRate, err = decimalFromPg(vatRate); err != nil {
			return nil, fmt.Errorf("invalid stored VAT rate: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

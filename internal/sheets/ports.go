package sheets

import (
	"context"

	"smartbudget/internal/core"
)

// Ports for outbound spreadsheet adapters.
type (
	// TransactionExporter keeps one row per transaction, keyed by id.
	TransactionExporter interface {
		Upsert(ctx context.Context, tx core.Transaction) error
		// Remove deletes the row for id. A missing row is not an error.
		Remove(ctx context.Context, id string) error
	}

	// TransactionMirror rewrites the whole export in collection order.
	TransactionMirror interface {
		Replace(ctx context.Context, txs []core.Transaction) error
	}

	Exporter interface {
		TransactionExporter
		TransactionMirror
	}
)

// Header is the first row of an exported sheet.
var Header = []string{"ID", "Date", "Type", "Category", "Description", "Amount", "Created At"}

// Row renders a transaction in Header order.
func Row(tx core.Transaction) []string {
	return []string{
		tx.ID,
		tx.Date.Format("2006-01-02"),
		string(tx.Type),
		tx.Category.Label(),
		tx.Description,
		tx.Amount.String(),
		tx.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

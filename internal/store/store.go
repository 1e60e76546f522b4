package store

import (
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/models"
)

// Repository defines the persistence operations used by the service layer.
// Consumers should depend on this interface rather than the concrete *DB.
type Repository interface {
	InsertTransactions(rows []TransactionRow) (int, error)
	ListTransactions(f TransactionFilter) ([]models.Transaction, error)
	AllTransactions() ([]models.Transaction, error)
	SearchTransactions(query string, limit int) ([]SearchResult, error)

	ListSubscriptions() ([]models.Subscription, error)
	GetSubscription(id string) (*models.Subscription, error)
	GetSubscriptionByVendor(key string) (*models.Subscription, error)
	ApplyUpserts(ups []detection.Upsert) ([]models.Subscription, error)
	SaveOverride(sub models.Subscription) error

	InsertInvoice(inv models.Invoice) error
	ListInvoices(limit int) ([]models.Invoice, error)

	HasImport(checksum string) (bool, error)
	RecordImport(imp Import) error

	Reset() error
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)

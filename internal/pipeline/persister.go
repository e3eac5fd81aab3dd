package pipeline

import (
	"context"
	"fmt"

	"github.com/nao1215/productingest/internal/model"
)

// Outcome is the result of persisting one record.
type Outcome int

const (
	// OutcomeInserted means the record was new and has been written.
	OutcomeInserted Outcome = iota

	// OutcomeExists means a record with the same identity was already stored.
	// Nothing was written or refreshed.
	OutcomeExists
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Store is the persistence collaborator the Persister writes through.
// database.SQLiteStore and database.PostgresStore implement it.
type Store interface {
	// Exists reports whether a record with the product's identity is stored.
	Exists(ctx context.Context, p *model.Product) (bool, error)

	// Insert writes the product unless one with the same identity exists.
	// It returns false when the insert lost to an existing record.
	Insert(ctx context.Context, p *model.Product) (bool, error)
}

// Persister writes never-before-seen records and skips known ones.
type Persister struct {
	store Store
}

// NewPersister creates a Persister over store.
func NewPersister(store Store) *Persister {
	return &Persister{store: store}
}

// Persist checks the store for the product and inserts it when absent.
// An insert that loses a race to a concurrent writer reports OutcomeExists.
func (p *Persister) Persist(ctx context.Context, product *model.Product) (Outcome, error) {
	exists, err := p.store.Exists(ctx, product)
	if err != nil {
		return 0, fmt.Errorf("failed to check product %s: %w", product.ProductID, err)
	}
	if exists {
		return OutcomeExists, nil
	}

	inserted, err := p.store.Insert(ctx, product)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product %s: %w", product.ProductID, err)
	}
	if !inserted {
		return OutcomeExists, nil
	}
	return OutcomeInserted, nil
}

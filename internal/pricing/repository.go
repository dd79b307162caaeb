// Package pricing resolves price quotes for the resources the assistant
// can offer during a conversation.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no price is configured for a resource.
var ErrNotFound = errors.New("price not found")

// Quote is a priced resource.
type Quote struct {
	Resource    string    `json:"resource"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetQuote returns the configured price for a resource.
func (r *Repository) GetQuote(ctx context.Context, resource string) (Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx, `
		SELECT resource, amount_cents, currency, updated_at
		FROM pricing_resources
		WHERE resource = $1
	`, resource).Scan(&q.Resource, &q.AmountCents, &q.Currency, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	return q, nil
}

// UpsertQuote creates or replaces the price for a resource.
func (r *Repository) UpsertQuote(ctx context.Context, q Quote) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pricing_resources (resource, amount_cents, currency, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (resource) DO UPDATE
		SET amount_cents = EXCLUDED.amount_cents,
		    currency = EXCLUDED.currency,
		    updated_at = now()
	`, q.Resource, q.AmountCents, q.Currency)
	return err
}

package repositories

import (
	"context"
	"fmt"
)

// Tx exposes the repositories bound to one transaction
type Tx interface {
	Instances() InstanceRepository
	Tags() TagRepository
	Catalog() CatalogRepository
}

// Store runs units of work atomically. If fn returns an error every write
// made through tx is discarded.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type pgStore struct {
	db TxBeginner
}

func NewPostgresStore(db TxBeginner) Store {
	return &pgStore{db: db}
}

type pgTx struct {
	instances InstanceRepository
	tags      TagRepository
	catalog   CatalogRepository
}

func (t *pgTx) Instances() InstanceRepository { return t.instances }
func (t *pgTx) Tags() TagRepository           { return t.tags }
func (t *pgTx) Catalog() CatalogRepository    { return t.catalog }

func (s *pgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{
		instances: NewInstanceRepo(tx),
		tags:      NewTagRepo(tx),
		catalog:   NewCatalogRepo(tx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

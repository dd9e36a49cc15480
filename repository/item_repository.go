package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"todoService/models"
)

// ItemRepository stores to-do items.
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx dbtx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// ListByOwner returns all items owned by userID ordered by id. The result is
// never nil.
func (r *ItemRepository) ListByOwner(ctx context.Context, userID int64) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, completed, owner_id FROM items WHERE owner_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	out := []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Completed, &it.OwnerID); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts it with ownerUserID as owner, ignoring it.OwnerID.
func (r *ItemRepository) Create(ctx context.Context, it *models.Item, ownerUserID int64) (*models.Item, error) {
	if it == nil {
		return nil, errors.New("item is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO items (name, completed, owner_id) VALUES (?, ?, ?)`,
		it.Name, it.Completed, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &models.Item{ID: id, Name: it.Name, Completed: it.Completed, OwnerID: ownerUserID}, nil
}

// GetByID fetches an item by id, returning (nil, nil) if absent.
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	it, err := getItem(ctx, r.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return it, err
}

func getItem(ctx context.Context, q dbtx, id int64) (*models.Item, error) {
	var it models.Item
	err := q.QueryRowContext(ctx, `SELECT id, name, completed, owner_id FROM items WHERE id = ?`, id).
		Scan(&it.ID, &it.Name, &it.Completed, &it.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// UpdateByID applies patch to the item with the given id regardless of owner.
func (r *ItemRepository) UpdateByID(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	return r.update(ctx, id, 0, patch)
}

// UpdateByOwner is UpdateByID restricted to items owned by ownerUserID; items
// owned by someone else are reported as ErrNotFound.
func (r *ItemRepository) UpdateByOwner(ctx context.Context, id, ownerUserID int64, patch models.ItemPatch) (*models.Item, error) {
	return r.update(ctx, id, ownerUserID, patch)
}

// update performs the read-modify-write in one transaction. owner 0 means unscoped.
func (r *ItemRepository) update(ctx context.Context, id, owner int64, patch models.ItemPatch) (*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out *models.Item
	err := withTx(ctx, r.db, func(tx dbtx) error {
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if owner != 0 && it.OwnerID != owner {
			return ErrNotFound
		}
		patch.Apply(it)
		if _, err := tx.ExecContext(ctx, `UPDATE items SET name = ?, completed = ? WHERE id = ?`, it.Name, it.Completed, id); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByID removes the item with the given id regardless of owner.
func (r *ItemRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.delete(ctx, `DELETE FROM items WHERE id = ?`, id)
}

// DeleteByOwner removes the item only if ownerUserID owns it.
func (r *ItemRepository) DeleteByOwner(ctx context.Context, id, ownerUserID int64) error {
	return r.delete(ctx, `DELETE FROM items WHERE id = ? AND owner_id = ?`, id, ownerUserID)
}

func (r *ItemRepository) delete(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/sqlinline"
)

// ErrNonTransactional is returned by SaveChunk when the executor cannot run
// the chunk inside a single transaction.
var ErrNonTransactional = errors.New("item store requires a transactional executor")

// ItemRepositoryPG implements domain.ItemStore on PostgreSQL.
type ItemRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewItemRepository creates a new item repository backed by PostgreSQL.
func NewItemRepository(sql infra.SQLExecutor) *ItemRepositoryPG {
	return &ItemRepositoryPG{sql: sql}
}

// SaveChunk inserts every item of the chunk in one transaction and returns
// the generated row ids in item order.
func (r *ItemRepositoryPG) SaveChunk(ctx context.Context, chunk domain.ChunkRecord) ([]string, error) {
	if len(chunk.Items) == 0 {
		return nil, nil
	}
	var ids []string
	insertAll := func(exec infra.SQLExecutor) error {
		ids = make([]string, 0, len(chunk.Items))
		for _, item := range chunk.Items {
			id, err := insertItem(ctx, exec, chunk, item)
			if err != nil {
				return fmt.Errorf("insert item %d of chunk %d: %w", item.Index, chunk.ChunkIndex, err)
			}
			ids = append(ids, id)
		}
		return nil
	}

	tx, ok := r.sql.(infra.TxRunner)
	if !ok {
		return nil, ErrNonTransactional
	}
	if err := tx.InTx(ctx, insertAll); err != nil {
		return nil, err
	}
	return ids, nil
}

func insertItem(ctx context.Context, exec infra.SQLExecutor, chunk domain.ChunkRecord, item domain.GeneratedItem) (string, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	row := exec.QueryRow(ctx, sqlinline.QInsertGeneratedItem,
		chunk.BatchID,
		chunk.ChunkIndex,
		item.Index,
		item.Name,
		item.Category,
		item.Cuisine,
		item.Nutrition.Calories,
		item.Media.URL,
		string(item.Media.Source),
		payload,
	)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ListByBatch returns persisted items of a batch ordered by chunk and item index.
func (r *ItemRepositoryPG) ListByBatch(ctx context.Context, batchID string) ([]domain.GeneratedItem, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListGeneratedItemsByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.GeneratedItem
	for rows.Next() {
		var (
			id        string
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, err
		}
		var item domain.GeneratedItem
		if err := json.Unmarshal(payload, &item); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", id, err)
		}
		item.PersistedID = id
		item.CreatedAt = createdAt
		items = append(items, item)
	}
	return items, rows.Err()
}

var _ domain.ItemStore = (*ItemRepositoryPG)(nil)

package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// SlotRepo stores slots in the save_slots table of a Postgres database.
type SlotRepo struct {
	db *DB
}

func NewSlotRepo(db *DB) *SlotRepo {
	return &SlotRepo{db: db}
}

func (r *SlotRepo) List(ctx context.Context) ([]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT slot FROM save_slots ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []int
	for rows.Next() {
		var slot int32
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, int(slot))
	}
	return slots, rows.Err()
}

func (r *SlotRepo) Read(ctx context.Context, slot int) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM save_slots WHERE slot = $1`, int32(slot),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrSlotNotFound, "slot %d", slot)
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %d: %w", slot, err)
	}
	return data, nil
}

func (r *SlotRepo) Write(ctx context.Context, slot int, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO save_slots (slot, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (slot) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		int32(slot), data, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write slot %d: %w", slot, err)
	}
	return nil
}

func (r *SlotRepo) Delete(ctx context.Context, slot int) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM save_slots WHERE slot = $1`, int32(slot))
	if err != nil {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	return nil
}

func (r *SlotRepo) Close() error {
	r.db.Close()
	return nil
}

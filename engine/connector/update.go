package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/vinsync/engine/record"
)

// OpType is the kind of an Operation.
type OpType string

const (
	OpUpsert     OpType = "upsert"
	OpCheckpoint OpType = "checkpoint"
)

// Operation is one instruction for the orchestrator.
type Operation struct {
	Type  OpType        `json:"type"`
	RunID string        `json:"run_id"`
	Table string        `json:"table,omitempty"`
	Data  record.Record `json:"data,omitempty"`
	State State         `json:"state,omitempty"`
}

// MarshalJSON always writes state on checkpoints, even when empty.
func (op Operation) MarshalJSON() ([]byte, error) {
	type plain Operation
	if op.Type != OpCheckpoint {
		return json.Marshal(plain(op))
	}
	st := op.State
	if st == nil {
		st = State{}
	}
	return json.Marshal(struct {
		plain
		State State `json:"state"`
	}{plain(op), st})
}

// Upsert builds an upsert of row into table.
func Upsert(runID, table string, row record.Record) Operation {
	return Operation{Type: OpUpsert, RunID: runID, Table: table, Data: row}
}

// Checkpoint builds a checkpoint carrying state.
func Checkpoint(runID string, state State) Operation {
	if state == nil {
		state = State{}
	}
	return Operation{Type: OpCheckpoint, RunID: runID, State: state}
}

// Emitter receives the operations of a sync run.
type Emitter func(ctx context.Context, op Operation) error

// Update runs a full sync: the connectivity self-test, then one upsert per
// row of every active table, then a single checkpoint. Nothing is emitted
// when the self-test fails. An emit error aborts the run.
func (c *Connector) Update(ctx context.Context, state State, emit Emitter) error {
	runID := uuid.NewString()
	log := c.log.With("run_id", runID)

	if !c.TestConnection(ctx) {
		log.Error("connection test failed, skipping sync")
		return ErrConnectionTest
	}
	log.Info("connection test successful")

	for _, t := range c.tables {
		log.Info("syncing table", "table", t.Name)
		rows, next, err := c.FetchRecords(ctx, t.Name, state)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", t.Name, err)
		}
		log.Info("fetched records", "table", t.Name, "count", len(rows))
		for _, row := range rows {
			if err := emit(ctx, Upsert(runID, t.Name, row)); err != nil {
				return fmt.Errorf("emit upsert %s: %w", t.Name, err)
			}
		}
		state = next
	}

	if err := emit(ctx, Checkpoint(runID, state)); err != nil {
		return fmt.Errorf("emit checkpoint: %w", err)
	}
	c.mLastSync.Set(time.Now().Unix())
	log.Info("sync complete", "tables", len(c.tables))
	return nil
}

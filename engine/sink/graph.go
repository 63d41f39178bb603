package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WessleyAI/vinsync/engine/connector"
	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/pkg/repo"
)

// Node labels used by GraphSink.
const (
	LabelVehicle   = "Vehicle"
	LabelRecall    = "Recall"
	LabelSyncState = "SyncState"
	RelAffects     = "AFFECTS"
)

// GraphSink writes vehicles and recalls as nodes merged on their primary
// key and links every recall to the vehicle it affects.
type GraphSink struct {
	store     repo.Repository
	connector string
	labels    map[string]string
	now       func() time.Time
}

// NewGraphSink writes through store. name identifies the connector's
// SyncState node.
func NewGraphSink(store repo.Repository, name string) *GraphSink {
	return &GraphSink{
		store:     store,
		connector: name,
		labels: map[string]string{
			record.TableVehicles: LabelVehicle,
			record.TableRecalls:  LabelRecall,
		},
		now: time.Now,
	}
}

func (s *GraphSink) Emit(ctx context.Context, op connector.Operation) error {
	switch op.Type {
	case connector.OpUpsert:
		return s.upsert(ctx, op)
	case connector.OpCheckpoint:
		return s.checkpoint(ctx, op)
	default:
		return fmt.Errorf("graph sink: %w %q", ErrUnknownOp, op.Type)
	}
}

func (s *GraphSink) upsert(ctx context.Context, op connector.Operation) error {
	t, ok := record.LookupTable(op.Table)
	if !ok {
		return fmt.Errorf("graph sink: unknown table %q", op.Table)
	}
	label := s.labels[t.Name]
	if err := s.store.Upsert(ctx, label, t.PrimaryKey, op.Data); err != nil {
		return fmt.Errorf("graph upsert %s: %w", label, err)
	}
	if t.Name != record.TableRecalls {
		return nil
	}
	return s.store.Link(ctx, repo.Edge{
		FromLabel: LabelRecall,
		From:      map[string]any{"vin": op.Data["vin"], "campaign_number": op.Data["campaign_number"]},
		Rel:       RelAffects,
		ToLabel:   LabelVehicle,
		To:        map[string]any{"vin": op.Data["vin"]},
	})
}

// checkpoint stores the state as JSON since node properties cannot hold maps.
func (s *GraphSink) checkpoint(ctx context.Context, op connector.Operation) error {
	state, err := json.Marshal(op.State)
	if err != nil {
		return err
	}
	props := map[string]any{
		"connector":  s.connector,
		"state":      string(state),
		"run_id":     op.RunID,
		"updated_at": s.now().UTC().Format(time.RFC3339),
	}
	return s.store.Upsert(ctx, LabelSyncState, []string{"connector"}, props)
}

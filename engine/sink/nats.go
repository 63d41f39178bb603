package sink

import (
	"context"
	"fmt"

	"github.com/WessleyAI/vinsync/engine/connector"
	"github.com/WessleyAI/vinsync/pkg/natsutil"
)

// DefaultSubject is the NATS subject prefix for operations.
const DefaultSubject = "vinsync.ops"

// NATSSink publishes upserts to "<subject>.<table>" and checkpoints to
// "<subject>.checkpoint".
type NATSSink struct {
	nc      natsutil.MsgPublisher
	subject string
}

// NewNATSSink publishes through nc. An empty subject means DefaultSubject.
func NewNATSSink(nc natsutil.MsgPublisher, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{nc: nc, subject: subject}
}

// Subject returns the subject op is published on.
func (s *NATSSink) Subject(op connector.Operation) string {
	if op.Type == connector.OpCheckpoint {
		return s.subject + ".checkpoint"
	}
	return s.subject + "." + op.Table
}

func (s *NATSSink) Emit(ctx context.Context, op connector.Operation) error {
	switch op.Type {
	case connector.OpUpsert, connector.OpCheckpoint:
	default:
		return fmt.Errorf("nats sink: %w %q", ErrUnknownOp, op.Type)
	}
	headers := map[string]string{"Vinsync-Op": string(op.Type), "Vinsync-Run": op.RunID}
	if err := natsutil.PublishWithHeaders(ctx, s.nc, s.Subject(op), op, headers); err != nil {
		return fmt.Errorf("nats publish %s: %w", s.Subject(op), err)
	}
	return nil
}

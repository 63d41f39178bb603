package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/WessleyAI/vinsync/engine/connector"
)

// JSONSink writes one JSON object per operation, newline separated.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink writes to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Emit(_ context.Context, op connector.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(op)
}

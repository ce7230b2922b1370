package executor

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONLinesProcessor writes every event as one JSON object per line, for
// UIs and log shipping.
type JSONLinesProcessor struct {
	mu  sync.Mutex
	enc *json.Encoder
	// SkipChunks drops stream chunks
	SkipChunks bool
}

// NewJSONLinesProcessor creates a processor writing to w
func NewJSONLinesProcessor(w io.Writer) *JSONLinesProcessor {
	return &JSONLinesProcessor{enc: json.NewEncoder(w)}
}

// Process handles a single event
func (p *JSONLinesProcessor) Process(event ConversationEvent) error {
	if p.SkipChunks && event.GetType() == EventAssistantStreamChunk {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(event)
}

// Close cleans up resources
func (p *JSONLinesProcessor) Close() error {
	return nil
}

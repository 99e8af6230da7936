package pgstore

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// encodeChange renders ch as a Redis message payload.
func encodeChange(ch gateway.Change) (string, error) {
	b, err := json.Marshal(ch)
	if err != nil {
		return "", fmt.Errorf("encode change: %w", err)
	}
	return string(b), nil
}

// decodeChange parses a Redis message payload.
func decodeChange(payload string) (gateway.Change, error) {
	var ch gateway.Change
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return gateway.Change{}, fmt.Errorf("decode change: %w", err)
	}
	if !ch.Kind.Valid() {
		return gateway.Change{}, fmt.Errorf("decode change: unknown kind %q", ch.Kind)
	}
	if ch.Record.ID == "" && ch.Kind != gateway.ChangeClear {
		return gateway.Change{}, fmt.Errorf("decode change: missing record id")
	}
	return ch, nil
}

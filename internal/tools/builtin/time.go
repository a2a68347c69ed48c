package builtin

import (
	"context"
	"encoding/json"
	"time"
)

// Now is the time.now built-in: no parameters, returns ISO-8601 now.
type Now struct{}

func (Now) Name() string { return "time.now" }

func (Now) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(struct {
		Now string `json:"now"`
	}{Now: time.Now().UTC().Format(time.RFC3339)})
}

package builtin

import (
	"context"
	"encoding/json"
)

// Echo is the echo.text built-in: returns input verbatim.
type Echo struct{}

func (Echo) Name() string { return "echo.text" }

type echoInput struct {
	Text string `json:"text"`
}

func (Echo) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in echoInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return json.Marshal(in)
}

package delivery

import (
	"context"
	"fmt"
)

// Probe checks that the relay accepts a session: connect, greet, optional
// STARTTLS and login, then NOOP. Any reply in the 2xx or 3xx range is healthy.
func (c *Client) Probe(ctx context.Context) error {
	if !c.configured {
		return ErrNotConfigured
	}
	client, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer quit(client)

	id, err := client.Text.Cmd("NOOP")
	if err != nil {
		return wrap("noop", err)
	}
	client.Text.StartResponse(id)
	code, _, err := client.Text.ReadResponse(0)
	client.Text.EndResponse(id)
	if err != nil {
		return wrap("noop", err)
	}
	if code < 200 || code >= 400 {
		return wrap("noop", fmt.Errorf("NOOP rc=%d", code))
	}
	return nil
}

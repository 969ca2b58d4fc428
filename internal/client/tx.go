package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

// Tx is a handle to a transaction opened on the server. It carries no
// local buffering — every Write call is a round trip, matching the
// server's own single-shard-scoped transaction semantics.
type Tx struct {
	client     *Client
	collection string
	id         string
}

// BeginTx opens a transaction scoped to collection.
func (c *Client) BeginTx(ctx context.Context, collection string) (*Tx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/tx/%s", c.baseURL, collection), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body struct {
		TxID string `json:"tx_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &Tx{client: c, collection: collection, id: body.TxID}, nil
}

// Write buffers one document write inside the transaction. A write that
// resolves to a different shard than the transaction's first write fails
// with an APIError carrying kind "consistency".
func (t *Tx) Write(ctx context.Context, doc docvalue.Value) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/tx/%s/documents", t.client.baseURL, t.id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Commit applies every buffered write.
func (t *Tx) Commit(ctx context.Context) error {
	return t.postNoBody(ctx, "commit")
}

// Rollback discards every buffered write.
func (t *Tx) Rollback(ctx context.Context) error {
	return t.postNoBody(ctx, "rollback")
}

func (t *Tx) postNoBody(ctx context.Context, action string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/tx/%s/%s", t.client.baseURL, t.id, action), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ClusterStatus mirrors GET /cluster/status: raw JSON, left for the
// caller to decode since its shape varies with how many collections and
// nodes exist.
func (c *Client) ClusterStatus(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/cluster/status")
}

// AddNode registers a new node with the cluster. It starts Joining on
// the node that handled the request and reaches the rest of the cluster
// on the next topology gossip tick.
func (c *Client) AddNode(ctx context.Context, nodeID, publicAddr, replicationAddr string) error {
	body, _ := json.Marshal(map[string]string{
		"node_id":          nodeID,
		"public_addr":      publicAddr,
		"replication_addr": replicationAddr,
	})
	return c.postJSON(ctx, "/cluster/add_node", body)
}

// RemoveNode evicts nodeID from every shard's placement immediately.
func (c *Client) RemoveNode(ctx context.Context, nodeID string) error {
	body, _ := json.Marshal(map[string]string{"node_id": nodeID})
	return c.postJSON(ctx, "/cluster/remove_node", body)
}

// Rebalance recomputes placement for every collection against the
// current node list.
func (c *Client) Rebalance(ctx context.Context) error {
	return c.postJSON(ctx, "/cluster/rebalance", nil)
}

// Reshard changes a collection's shard count.
func (c *Client) Reshard(ctx context.Context, collection string, numShards int) error {
	body, _ := json.Marshal(map[string]any{"collection": collection, "num_shards": numShards})
	return c.postJSON(ctx, "/cluster/reshard", body)
}

// CreateCollection configures a new collection.
func (c *Client) CreateCollection(ctx context.Context, name string, numShards, replicationFactor int, shardKey string) error {
	body, _ := json.Marshal(map[string]any{
		"name":               name,
		"num_shards":         numShards,
		"replication_factor": replicationFactor,
		"shard_key":          shardKey,
	})
	return c.postJSON(ctx, "/collections", body)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s", c.baseURL, path), nil)
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
	return io.ReadAll(resp.Body)
}

// solidbctl is the CLI admin client, built with Cobra.
//
// Usage:
//
//	solidbctl put docs '{"name":"alice"}' --key u1 --server http://localhost:8080
//	solidbctl get docs u1                     --server http://localhost:8080
//	solidbctl delete docs u1                  --server http://localhost:8080
//	solidbctl cluster status                  --server http://localhost:8080
//	solidbctl cluster join n4 host:8080 host:9090 --server http://localhost:8080
//	solidbctl cluster remove-node n2          --server http://localhost:8080
//	solidbctl cluster reshard docs 16         --server http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/solisoft/solidb-sub010/internal/client"
	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "solidbctl",
		Short: "Admin CLI for a solidb node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "Node API address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), collectionCmd(), clusterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── documents ──────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "put <collection> <json>",
		Short: "Store a document, generating a key if --key is omitted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc docvalue.Value
			if err := json.Unmarshal([]byte(args[1]), &doc); err != nil {
				return fmt.Errorf("invalid document json: %w", err)
			}
			c := client.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], key, doc)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Explicit document key")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <key>",
		Short: "Retrieve a document by key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Get(context.Background(), args[0], args[1])
			if err == client.ErrNotFound {
				fmt.Printf("document %q not found in %q\n", args[1], args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <key>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			if err := c.Delete(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("deleted %q from %q\n", args[1], args[0])
			return nil
		},
	}
}

// ─── collections ────────────────────────────────────────────────────────────

func collectionCmd() *cobra.Command {
	var numShards, replicationFactor int
	var shardKey string

	cmd := &cobra.Command{
		Use:   "create-collection <name>",
		Short: "Configure a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.CreateCollection(context.Background(), args[0], numShards, replicationFactor, shardKey)
		},
	}
	cmd.Flags().IntVar(&numShards, "num-shards", 8, "Shard count")
	cmd.Flags().IntVar(&replicationFactor, "replication-factor", 3, "Replication factor")
	cmd.Flags().StringVar(&shardKey, "shard-key", "", "Shard key field (default _key)")
	return cmd
}

// ─── cluster ────────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster administration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show node health and shard placement",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			raw, err := c.ClusterStatus(context.Background())
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(raw, &pretty); err == nil {
				prettyPrint(pretty)
				return nil
			}
			fmt.Println(string(raw))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "join <node_id> <public_addr> <replication_addr>",
		Short: "Register a new node and let it join the cluster",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.AddNode(context.Background(), args[0], args[1], args[2])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-node <node_id>",
		Short: "Evict a node from the shard map immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.RemoveNode(context.Background(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rebalance",
		Short: "Recompute placement for every collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			return c.Rebalance(context.Background())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reshard <collection> <num_shards>",
		Short: "Change a collection's shard count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
				return fmt.Errorf("invalid shard count %q", args[1])
			}
			c := client.New(serverAddr, timeout)
			return c.Reshard(context.Background(), args[0], n)
		},
	})

	return cmd
}

// ─── helpers ────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

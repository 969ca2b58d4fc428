// Package config centralizes a node's flag/environment-driven
// configuration: listen addresses, data directory, replication and
// health tuning, and peer seed list. A single binary can serve any role
// in the cluster by varying these flags.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Peer is a seed entry from the --peers flag: node_id=host:port.
type Peer struct {
	NodeID string
	Addr   string
}

// NodeConfig holds everything internal/core needs to wire up a node.
type NodeConfig struct {
	NodeID          string
	APIAddr         string
	ReplicationAddr string
	MetricsAddr     string
	DataDir         string
	Peers           []Peer

	NumShards         int
	ReplicationFactor int

	HeartbeatInterval time.Duration
	SuspectThreshold  int
	FailureThreshold  time.Duration
	BreakerCooldown   time.Duration
}

// ParseFlags defines and parses the node flag set against args (normally
// os.Args[1:]). It does not call flag.Parse() on the global flag.CommandLine,
// so it's safe to call more than once in tests.
func ParseFlags(args []string) (NodeConfig, error) {
	fs := flag.NewFlagSet("solidbnode", flag.ContinueOnError)

	nodeID := fs.String("id", "", "Unique node identifier (generated and persisted if empty)")
	apiAddr := fs.String("api-addr", ":8080", "HTTP API listen address")
	replAddr := fs.String("replication-addr", ":9090", "Peer-to-peer replication listen address")
	metricsAddr := fs.String("metrics-addr", ":9100", "Stored in NodeConfig.MetricsAddr; no listener is opened on it (/metrics is served on the API address)")
	dataDir := fs.String("data-dir", "/var/lib/solidb", "Directory for the metastore and storage engine")
	peersFlag := fs.String("peers", "", "Comma-separated list of seed peers: node_id=host:port")
	numShards := fs.Int("num-shards", 8, "Stored in NodeConfig.NumShards; POST /collections does not read it and defaults to 8 shards")
	replicationFactor := fs.Int("replication-factor", 3, "Replication factor handed to the coordinator; POST /collections does not read it and defaults to 3")
	heartbeatInterval := fs.Duration("heartbeat-interval", time.Second, "Interval between heartbeats to each peer")
	suspectThreshold := fs.Int("suspect-threshold", 3, "Consecutive missed heartbeats before a peer is marked Suspect")
	failureThreshold := fs.Duration("failure-threshold", 30*time.Second, "Time spent Suspect before a peer is marked Failed")
	breakerCooldown := fs.Duration("breaker-cooldown", time.Minute, "Circuit breaker cooldown after a failed coordination attempt")

	if err := fs.Parse(args); err != nil {
		return NodeConfig{}, err
	}

	peers, err := parsePeers(*peersFlag)
	if err != nil {
		return NodeConfig{}, err
	}

	return NodeConfig{
		NodeID:            *nodeID,
		APIAddr:           *apiAddr,
		ReplicationAddr:   *replAddr,
		MetricsAddr:       *metricsAddr,
		DataDir:           *dataDir,
		Peers:             peers,
		NumShards:         *numShards,
		ReplicationFactor: *replicationFactor,
		HeartbeatInterval: *heartbeatInterval,
		SuspectThreshold:  *suspectThreshold,
		FailureThreshold:  *failureThreshold,
		BreakerCooldown:   *breakerCooldown,
	}, nil
}

func parsePeers(flagVal string) ([]Peer, error) {
	if flagVal == "" {
		return nil, nil
	}
	var peers []Peer
	for _, entry := range strings.Split(flagVal, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: invalid peer entry %q, expected node_id=host:port", entry)
		}
		peers = append(peers, Peer{NodeID: parts[0], Addr: parts[1]})
	}
	return peers, nil
}

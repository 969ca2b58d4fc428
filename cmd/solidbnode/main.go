// solidbnode is the entrypoint for a single node in a solidb cluster.
// Configuration is entirely via flags/environment so the same binary can
// serve any role.
//
// Example — single node:
//
//	./solidbnode --id node1 --api-addr :8080 --replication-addr :9090 --data-dir /var/lib/solidb/node1
//
// Example — 3-node cluster:
//
//	./solidbnode --id node1 --api-addr :8080 --replication-addr :9090 --data-dir /tmp/n1 \
//	             --peers node2=localhost:9091,node3=localhost:9092
//	./solidbnode --id node2 --api-addr :8081 --replication-addr :9091 --data-dir /tmp/n2 \
//	             --peers node1=localhost:9090,node3=localhost:9092
//	./solidbnode --id node3 --api-addr :8082 --replication-addr :9092 --data-dir /tmp/n3 \
//	             --peers node1=localhost:9090,node2=localhost:9091
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/solisoft/solidb-sub010/internal/api"
	"github.com/solisoft/solidb-sub010/internal/config"
	"github.com/solisoft/solidb-sub010/internal/coordinator"
	"github.com/solisoft/solidb-sub010/internal/core"
	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/metrics"
	"github.com/solisoft/solidb-sub010/internal/peer"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/replication"
	"github.com/solisoft/solidb-sub010/internal/routing"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
	"github.com/solisoft/solidb-sub010/internal/storage"
	"github.com/solisoft/solidb-sub010/internal/storage/walengine"
	"github.com/solisoft/solidb-sub010/internal/wire"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("solidbnode: %v", err)
	}
}

func run(cfg config.NodeConfig) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	meta, err := metastore.Open(filepath.Join(cfg.DataDir, "metastore.db"))
	if err != nil {
		return fmt.Errorf("opening metastore: %w", err)
	}
	defer meta.Close()

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID, err = meta.NodeID(func() string { return uuid.NewString() })
		if err != nil {
			return fmt.Errorf("resolving node id: %w", err)
		}
	}
	log.Printf("solidbnode: starting as %s (api=%s replication=%s)", nodeID, cfg.APIAddr, cfg.ReplicationAddr)

	local, err := walengine.Open(filepath.Join(cfg.DataDir, "storage"))
	if err != nil {
		return fmt.Errorf("opening storage engine: %w", err)
	}
	defer local.Close()

	reg := registry.New()
	reg.Register(nodeID, cfg.APIAddr, cfg.ReplicationAddr)
	reg.RecordHeartbeatSuccess(nodeID, time.Now())
	for _, p := range cfg.Peers {
		reg.Register(p.NodeID, "", p.Addr)
	}

	shards := shardmap.NewStore()
	router := routing.New(shards, reg)

	dialer := peer.NewDialer(func(id string) (string, bool) {
		n, ok := reg.Node(id)
		if !ok || n.ReplicationAddr == "" {
			return "", false
		}
		return n.ReplicationAddr, true
	})

	replEngine := replication.New(nodeID, local, meta, dialer, 4096)
	clock := hlc.New(func() int64 { return time.Now().UnixMilli() })
	node := core.New(nodeID, clock, router, replEngine, local, dialer)

	coord := coordinator.New(nodeID, shards, reg, meta, coordinator.Config{
		ReplicationFactor: cfg.ReplicationFactor,
		FailureThreshold:  cfg.FailureThreshold,
		BreakerCooldown:   cfg.BreakerCooldown,
	})
	migrator := coordinator.NewMigrator(nodeID, coord, local, dialer)

	collector := metrics.New()

	peerSrv, err := peer.Listen(cfg.ReplicationAddr, peer.Handlers{
		Heartbeat: func(ctx context.Context, from hlc.Timestamp) hlc.Timestamp {
			return clock.Observe(from)
		},
		Replicate: func(ctx context.Context, msg wire.Replicate) wire.ReplicateAck {
			op := replication.Op{
				SourceNodeID: msg.SourceNodeID,
				OpID:         msg.OpID,
				HLC:          msg.HLC,
				Collection:   msg.Collection,
				ShardIndex:   msg.ShardIndex,
				Payload:      msg.Payload,
			}
			if _, err := replEngine.ApplyLocal(ctx, op); err != nil {
				return wire.ReplicateAck{OpID: msg.OpID, Status: wire.StatusError, Kind: "internal", Message: err.Error()}
			}
			return wire.ReplicateAck{OpID: msg.OpID, Status: wire.StatusOK}
		},
		MigrationStream: migrator.ApplyMigrationBatch,
		TopologyGossip: func(ctx context.Context, msg wire.TopologyGossip) wire.TopologyGossipAck {
			for _, n := range msg.Nodes {
				reg.Register(n.NodeID, n.PublicAddr, n.ReplicationAddr)
			}
			return wire.TopologyGossipAck{MapVersion: shards.Load().Version}
		},
		Fetch: func(ctx context.Context, msg wire.Fetch) wire.FetchAck {
			idx, err := router.ShardIndex(msg.Collection, msg.Key)
			if err != nil {
				return wire.FetchAck{Status: wire.StatusError, Message: err.Error()}
			}
			rec, err := local.Get(ctx, storage.Namespace(msg.Collection, idx), msg.Key)
			if err == storage.ErrNotFound {
				return wire.FetchAck{Status: wire.StatusOK, Found: false}
			}
			if err != nil {
				return wire.FetchAck{Status: wire.StatusError, Message: err.Error()}
			}
			return wire.FetchAck{Status: wire.StatusOK, Found: true, Payload: rec.Payload}
		},
	})
	if err != nil {
		return fmt.Errorf("starting replication listener: %w", err)
	}

	apiSrv := api.New(nodeID, node, coord, reg, shards, collector)
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: apiSrv.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := peerSrv.Serve(); err != nil {
			log.Printf("solidbnode: replication listener stopped: %v", err)
		}
	}()
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("solidbnode: api listener stopped: %v", err)
		}
	}()
	go runCoordinator(ctx, nodeID, coord)
	go runHeartbeatLoop(ctx, nodeID, cfg, reg, dialer, clock)
	go runGossipLoop(ctx, nodeID, cfg, reg, shards, dialer)
	go runMigratorLoop(ctx, migrator)
	go runDrainers(ctx, cfg, reg, replEngine)
	go runSnapshotLoop(ctx, local)

	<-ctx.Done()
	log.Printf("solidbnode: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = peerSrv.Close()
	if err := local.Snapshot(); err != nil {
		log.Printf("solidbnode: final snapshot failed: %v", err)
	}
	return nil
}

// runCoordinator waits out this node's deterministic stagger delay before
// starting the coordinator's transition loop, so that a topology event
// affecting every node's registry at once (e.g. a peer going Failed) isn't
// acted on by every node in the same instant.
func runCoordinator(ctx context.Context, selfID string, coord *coordinator.Coordinator) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(coordinator.StaggerDelay(selfID)):
	}
	coord.Run(ctx)
}

// runGossipLoop periodically pushes this node's known, non-Removed
// membership list to every other Healthy peer, so an admin-triggered
// add_node on one node converges to the rest of the cluster without
// requiring a restart. Receivers only register nodes they did not know;
// a node missing from the list is not removed on the receiving side, so
// remove_node does not propagate this way. Shard map contents are never sent: every node recomputes the
// same placement deterministically once its membership list matches, so
// only the node list needs to propagate.
func runGossipLoop(ctx context.Context, selfID string, cfg config.NodeConfig, reg *registry.Registry, shards *shardmap.Store, dialer *peer.Dialer) {
	ticker := time.NewTicker(cfg.HeartbeatInterval * 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			all := reg.All()
			nodes := make([]wire.GossipNode, 0, len(all))
			for _, n := range all {
				if n.State == registry.Removed {
					continue
				}
				nodes = append(nodes, wire.GossipNode{NodeID: n.ID, PublicAddr: n.PublicAddr, ReplicationAddr: n.ReplicationAddr})
			}
			msg := wire.TopologyGossip{MapVersion: shards.Load().Version, Nodes: nodes}
			for _, n := range all {
				if n.ID == selfID || n.State != registry.Healthy {
					continue
				}
				gossipCtx, cancel := context.WithTimeout(ctx, cfg.HeartbeatInterval)
				_, _ = dialer.SendTopologyGossip(gossipCtx, n.ID, msg)
				cancel()
			}
		}
	}
}

// runHeartbeatLoop pings every known peer at HeartbeatInterval and folds
// the result into the registry's health state machine.
func runHeartbeatLoop(ctx context.Context, selfID string, cfg config.NodeConfig, reg *registry.Registry, dialer *peer.Dialer, clock *hlc.Clock) {
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, n := range reg.All() {
				if n.ID == selfID || n.State == registry.Removed {
					continue
				}
				hbCtx, cancel := context.WithTimeout(ctx, cfg.HeartbeatInterval)
				remote, err := dialer.SendHeartbeat(hbCtx, n.ID, clock.Now())
				cancel()
				now := time.Now()
				if err != nil {
					reg.RecordHeartbeatFailure(n.ID, now, cfg.SuspectThreshold, cfg.FailureThreshold)
					continue
				}
				clock.Observe(remote)
				reg.RecordHeartbeatSuccess(n.ID, now)
			}
		}
	}
}

func runMigratorLoop(ctx context.Context, m *coordinator.Migrator) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// registryHealth adapts registry.Registry to replication.HealthSource.
type registryHealth struct{ reg *registry.Registry }

func (h registryHealth) IsHealthy(peerNodeID string) bool {
	state, ok := h.reg.NodeState(peerNodeID)
	return ok && state == registry.Healthy
}

// runDrainers starts one replication.Drainer per configured peer; each
// drains that peer's durable queue whenever the peer is healthy.
func runDrainers(ctx context.Context, cfg config.NodeConfig, reg *registry.Registry, engine *replication.Engine) {
	health := registryHealth{reg: reg}
	for _, p := range cfg.Peers {
		d := replication.NewDrainer(p.NodeID, engine, health, nil)
		go d.Run(ctx)
	}
}

// runSnapshotLoop periodically checkpoints the storage engine so restart
// doesn't replay an unbounded write-ahead log.
func runSnapshotLoop(ctx context.Context, local *walengine.Engine) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := local.Snapshot(); err != nil {
				log.Printf("solidbnode: snapshot failed: %v", err)
			}
		}
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

// clusterStatus handles GET /cluster/status: every known node's health
// state plus every collection's current shard placement.
func (s *Server) clusterStatus(c *gin.Context) {
	nodes := s.registry.All()
	nodeViews := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		nodeViews = append(nodeViews, gin.H{
			"node_id":           n.ID,
			"state":             n.State.String(),
			"consecutive_fails": n.ConsecutiveFails,
		})
	}

	m := s.shards.Load()
	collections := make([]gin.H, 0)
	for _, name := range m.Collections() {
		cfg, _ := m.CollectionConfig(name)
		shards := make([]gin.H, 0, cfg.NumShards)
		for i := 0; i < cfg.NumShards; i++ {
			entry, _ := m.ShardEntryOf(name, i)
			shardView := gin.H{"shard_index": i, "stable": entry.Stable}
			if entry.Migrating != nil {
				shardView["migrating_to"] = entry.Migrating.NewReplicas
			}
			shards = append(shards, shardView)
		}
		collections = append(collections, gin.H{
			"collection":         name,
			"num_shards":         cfg.NumShards,
			"replication_factor": cfg.ReplicationFactor,
			"shards":             shards,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"self_id":     s.selfID,
		"paused":      s.coordinator.Paused(),
		"nodes":       nodeViews,
		"collections": collections,
		"active_migrations": len(s.coordinator.ActiveTasks()),
	})
}

// addNode handles POST /cluster/add_node.
// Body: {"node_id": "...", "public_addr": "...", "replication_addr": "..."}.
// The node starts Joining immediately on this node; it reaches the rest
// of the cluster on the next topology gossip tick, and picks up shard
// placement once a heartbeat reports it Healthy.
func (s *Server) addNode(c *gin.Context) {
	var body struct {
		NodeID          string `json:"node_id" binding:"required"`
		PublicAddr      string `json:"public_addr" binding:"required"`
		ReplicationAddr string `json:"replication_addr" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}
	s.coordinator.AddNode(body.NodeID, body.PublicAddr, body.ReplicationAddr)
	c.JSON(http.StatusOK, gin.H{"added": body.NodeID})
}

// removeNode handles POST /cluster/remove_node. Body: {"node_id": "..."}.
func (s *Server) removeNode(c *gin.Context) {
	var body struct {
		NodeID string `json:"node_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}
	tasks := s.coordinator.RemoveNode(body.NodeID)
	c.JSON(http.StatusOK, gin.H{"removed": body.NodeID, "migrations_scheduled": len(tasks)})
}

// rebalance handles POST /cluster/rebalance: recomputes placement for
// every collection against the current node list.
func (s *Server) rebalance(c *gin.Context) {
	tasks := s.coordinator.Rebalance()
	c.JSON(http.StatusOK, gin.H{"migrations_scheduled": len(tasks)})
}

// reshard handles POST /cluster/reshard.
// Body: {"collection": "...", "num_shards": N}.
func (s *Server) reshard(c *gin.Context) {
	var body struct {
		Collection string `json:"collection" binding:"required"`
		NumShards  int    `json:"num_shards" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}
	if s.coordinator.Paused() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "kind": "topology", "message": "cluster health degraded; resharding paused"})
		return
	}
	tasks := s.coordinator.Reshard(body.Collection, body.NumShards)
	if tasks == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": "unknown collection"})
		return
	}
	taskIDs := make([]string, 0, len(tasks))
	for _, t := range tasks {
		taskIDs = append(taskIDs, t.TaskID)
	}
	c.JSON(http.StatusOK, gin.H{"collection": body.Collection, "tasks": taskIDs})
}

// createCollection handles POST /collections.
// Body: {"name": "...", "num_shards": N, "replication_factor": N, "shard_key": "..."}.
// replication_factor is silently capped to the current node count: a
// collection can never ask for more replicas than there are nodes to
// hold them.
func (s *Server) createCollection(c *gin.Context) {
	var body struct {
		Name              string `json:"name" binding:"required"`
		NumShards         int    `json:"num_shards"`
		ReplicationFactor int    `json:"replication_factor"`
		ShardKey          string `json:"shard_key"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}
	if body.NumShards <= 0 {
		body.NumShards = 8
	}
	if body.ReplicationFactor <= 0 {
		body.ReplicationFactor = 3
	}

	nodeIDs := s.registry.NodeIDs()
	if body.ReplicationFactor > len(nodeIDs) && len(nodeIDs) > 0 {
		body.ReplicationFactor = len(nodeIDs)
	}

	cfg := shardmap.CollectionConfig{
		NumShards:         body.NumShards,
		ReplicationFactor: body.ReplicationFactor,
		ShardKeyField:     body.ShardKey,
	}
	next := s.shards.Load().WithCollection(body.Name, cfg, nodeIDs)
	s.shards.Publish(next)

	c.JSON(http.StatusOK, gin.H{
		"name":               body.Name,
		"num_shards":         cfg.NumShards,
		"replication_factor": cfg.ReplicationFactor,
	})
}

// health handles GET /health: a cheap liveness probe that never touches
// the shard map or the registry.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node_id": s.selfID})
}

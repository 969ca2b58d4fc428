// Package api wires internal/core, internal/coordinator and
// internal/metrics onto a Gin HTTP router: the document API, the
// transaction API, cluster administration, and the Prometheus/health
// endpoints a node exposes to the outside world.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/solisoft/solidb-sub010/internal/coordinator"
	"github.com/solisoft/solidb-sub010/internal/core"
	"github.com/solisoft/solidb-sub010/internal/metrics"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	node        *core.Node
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	shards      *shardmap.Store
	metrics     *metrics.Collector
	selfID      string
	txs         *txRegistry
}

// New creates a Server. Pass the same instances the node wired up at
// startup; Server holds no state of its own beyond the open-transaction
// table.
func New(selfID string, node *core.Node, coord *coordinator.Coordinator, reg *registry.Registry, shards *shardmap.Store, m *metrics.Collector) *Server {
	return &Server{
		node:        node,
		coordinator: coord,
		registry:    reg,
		shards:      shards,
		metrics:     m,
		selfID:      selfID,
		txs:         newTxRegistry(),
	}
}

// Router builds the Gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(), RequestLog())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	docs := r.Group("/documents")
	docs.PUT("/:collection", s.putDocument)
	docs.PUT("/:collection/:key", s.putDocument)
	docs.GET("/:collection/:key", s.getDocument)
	docs.DELETE("/:collection/:key", s.deleteDocument)

	tx := r.Group("/tx")
	tx.POST("/:collection", s.beginTx)
	tx.PUT("/:id/documents", s.writeTx)
	tx.POST("/:id/commit", s.commitTx)
	tx.POST("/:id/rollback", s.rollbackTx)

	cluster := r.Group("/cluster")
	cluster.GET("/status", s.clusterStatus)
	cluster.POST("/add_node", s.addNode)
	cluster.POST("/remove_node", s.removeNode)
	cluster.POST("/rebalance", s.rebalance)
	cluster.POST("/reshard", s.reshard)

	r.POST("/collections", s.createCollection)

	return r
}

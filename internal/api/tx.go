package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/solisoft/solidb-sub010/internal/core"
	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

// txRegistry tracks open, not-yet-committed transactions by a server
// generated id. internal/core.Tx itself carries no id — the HTTP layer is
// the first place one is needed, since a transaction spans several
// requests over time.
type txRegistry struct {
	mu   sync.Mutex
	open map[string]*core.Tx
}

func newTxRegistry() *txRegistry {
	return &txRegistry{open: map[string]*core.Tx{}}
}

func (r *txRegistry) put(tx *core.Tx) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.open[id] = tx
	r.mu.Unlock()
	return id
}

func (r *txRegistry) get(id string) (*core.Tx, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.open[id]
	return tx, ok
}

func (r *txRegistry) drop(id string) {
	r.mu.Lock()
	delete(r.open, id)
	r.mu.Unlock()
}

// beginTx handles POST /tx/:collection, opening a transaction scoped to
// that collection and returning its id.
func (s *Server) beginTx(c *gin.Context) {
	collection := c.Param("collection")
	tx := s.node.BeginTx(collection)
	id := s.txs.put(tx)
	c.JSON(http.StatusOK, gin.H{"tx_id": id})
}

// writeTx handles PUT /tx/:id/documents, buffering one write inside the
// transaction opened by beginTx.
func (s *Server) writeTx(c *gin.Context) {
	id := c.Param("id")
	tx, ok := s.txs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "kind": "not_found", "message": "unknown transaction"})
		return
	}

	var doc docvalue.Value
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}

	if err := tx.Put(c.Request.Context(), doc); err != nil {
		status, kind := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "kind": kind, "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// commitTx handles POST /tx/:id/commit.
func (s *Server) commitTx(c *gin.Context) {
	id := c.Param("id")
	tx, ok := s.txs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "kind": "not_found", "message": "unknown transaction"})
		return
	}
	defer s.txs.drop(id)

	if err := tx.Commit(c.Request.Context()); err != nil {
		status, kind := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "kind": kind, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": id, "committed": true})
}

// rollbackTx handles POST /tx/:id/rollback.
func (s *Server) rollbackTx(c *gin.Context) {
	id := c.Param("id")
	tx, ok := s.txs.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "kind": "not_found", "message": "unknown transaction"})
		return
	}
	tx.Rollback()
	s.txs.drop(id)
	c.JSON(http.StatusOK, gin.H{"tx_id": id, "rolled_back": true})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

// putDocument handles PUT /documents/:collection and PUT /documents/:collection/:key.
// When :key is absent, core.Node.Put generates one.
func (s *Server) putDocument(c *gin.Context) {
	collection := c.Param("collection")

	var doc docvalue.Value
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "kind": "routing", "message": err.Error()})
		return
	}

	if key := c.Param("key"); key != "" {
		doc = doc.WithField("_key", docvalue.String(key))
	}

	key, ts, err := s.node.Put(c.Request.Context(), collection, doc)
	if err != nil {
		status, kind := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "kind": kind, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "hlc": ts.String()})
}

// getDocument handles GET /documents/:collection/:key.
func (s *Server) getDocument(c *gin.Context) {
	collection := c.Param("collection")
	key := c.Param("key")

	doc, err := s.node.Get(c.Request.Context(), collection, key)
	if err != nil {
		status, kind := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "kind": kind, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": doc.Value, "_replicas": doc.Replicas})
}

// deleteDocument handles DELETE /documents/:collection/:key.
func (s *Server) deleteDocument(c *gin.Context) {
	collection := c.Param("collection")
	key := c.Param("key")

	ts, err := s.node.Delete(c.Request.Context(), collection, key)
	if err != nil {
		status, kind := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "kind": kind, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "hlc": ts.String()})
}

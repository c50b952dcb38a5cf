// Package api wires up the Gin HTTP router exposing a peerlog node's
// object store, gossip endpoint, and database lifecycle operations.
package api

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/peerlog/peerlog/internal/address"
	"github.com/peerlog/peerlog/internal/canon"
	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/gossip"
	"github.com/peerlog/peerlog/internal/objectstore"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	store objectstore.Store
	bus   *gossip.HTTPBus
	deps  coordinator.Deps

	mu  sync.RWMutex
	dbs map[string]*coordinator.Coordinator // keyed by address string
}

// NewHandler creates a Handler serving store over HTTP and bus over
// websocket, using deps to open/create databases on request.
func NewHandler(store objectstore.Store, bus *gossip.HTTPBus, deps coordinator.Deps) *Handler {
	return &Handler{store: store, bus: bus, deps: deps, dbs: make(map[string]*coordinator.Coordinator)}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/gossip", h.bus.Handler())
	r.GET("/healthz", h.Healthz)

	objects := r.Group("/objects")
	objects.GET("/:cid", h.GetObject)
	objects.POST("", h.PutObject)

	databases := r.Group("/databases")
	databases.POST("", h.OpenDatabase)
	databases.POST("/:address/entries", h.AddEntry)
	databases.GET("/:address/entries", h.ListEntries)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ─── Object store handlers ────────────────────────────────────────────────

// GetObject handles GET /objects/:cid, used by RemoteStore peers fetching a
// CID this node might hold.
func (h *Handler) GetObject(c *gin.Context) {
	id, err := canon.ParseCid(c.Param("cid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if err == objectstore.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", b)
}

// PutObject handles POST /objects with the raw body as content; returns
// the content's CID.
func (h *Handler) PutObject(c *gin.Context) {
	b, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.store.Put(b)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cid": id.String()})
}

// ─── Database lifecycle handlers ──────────────────────────────────────────

type openRequest struct {
	Address   string   `json:"address" binding:"required"`
	Create    bool     `json:"create"`
	Type      string   `json:"type"`
	Overwrite bool     `json:"overwrite"`
	LocalOnly bool     `json:"localOnly"`
	Sync      bool     `json:"sync"`
	Write     []string `json:"write"`
}

// OpenDatabase handles POST /databases: open or create a database and hold
// it open under this handler for subsequent entry operations.
func (h *Handler) OpenDatabase(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := coordinator.Options{
		Create:    req.Create,
		Type:      address.Type(req.Type),
		Overwrite: req.Overwrite,
		LocalOnly: req.LocalOnly,
		Sync:      req.Sync,
		Write:     req.Write,
	}
	co, err := coordinator.Open(c.Request.Context(), req.Address, opts, h.deps)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.dbs[co.Address().String()] = co
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"address": co.Address().String(),
		"name":    co.Manifest().Name,
		"type":    co.Manifest().Type,
	})
}

func (h *Handler) lookup(addr string) (*coordinator.Coordinator, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	co, ok := h.dbs[addr]
	return co, ok
}

type addEntryRequest struct {
	Payload []byte `json:"payload" binding:"required"`
}

// AddEntry handles POST /databases/:address/entries.
func (h *Handler) AddEntry(c *gin.Context) {
	co, ok := h.lookup(c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "database not open"})
		return
	}
	var req addEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := co.Add(c.Request.Context(), req.Payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": e.Hash.String(), "clock": e.Clock})
}

// ListEntries handles GET /databases/:address/entries?limit=N.
func (h *Handler) ListEntries(c *gin.Context) {
	co, ok := h.lookup(c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "database not open"})
		return
	}
	limit := -1
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries := co.Iterator(coordinator.IteratorOptions{Limit: limit})

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{"hash": e.Hash.String(), "clock": e.Clock, "payload": e.Payload})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

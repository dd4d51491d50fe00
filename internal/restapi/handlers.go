package restapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"dstore/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// envelope is the response shape every route returns, grounded on
// original_source/dstore/rest_store.py's uniform
// {"result": bool, "store_id": sid, "data": [...]|null}.
type envelope struct {
	Result  bool       `json:"result"`
	StoreID string     `json:"store_id,omitempty"`
	Data    []dataItem `json:"data"`
}

type dataItem struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version *int64 `json:"version"`
}

// Handler holds the dependencies every route needs, mirroring the
// teacher's Handler{store, replicator, membership, selfID} shape.
type Handler struct {
	manager *Manager
	log     *logrus.Entry
}

// NewHandler creates a Handler bound to manager.
func NewHandler(manager *Manager, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{manager: manager, log: log.WithField("component", "restapi")}
}

// Register mounts every route spec.md §6 names on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.index)
	r.POST("/create/:sid", h.create)
	r.DELETE("/destroy/:sid", h.destroy)
	r.GET("/get/:sid/*uri", h.get)
	r.PUT("/put/:sid/*uri", h.put)
	r.PATCH("/dput/:sid/*uri", h.dput)
	r.DELETE("/remove/:sid/*uri", h.remove)
}

func (h *Handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"STORE REST API": gin.H{"version": 0.1},
	})
}

// create handles POST /create/:sid, reading root/home/size from form
// data exactly as rest_store.py's create() does.
func (h *Handler) create(c *gin.Context) {
	sid := c.Param("sid")
	root := c.PostForm("root")
	home := c.PostForm("home")

	cacheSize := 1024
	if raw := c.PostForm("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, envelope{Result: false, StoreID: sid})
			return
		}
		cacheSize = n
	}

	if err := h.manager.Create(sid, root, home, cacheSize); err != nil {
		h.log.WithError(err).WithField("store_id", sid).Warn("create failed")
		c.JSON(http.StatusBadRequest, envelope{Result: false, StoreID: sid})
		return
	}
	c.JSON(http.StatusOK, envelope{Result: true, StoreID: sid})
}

// destroy handles DELETE /destroy/:sid.
func (h *Handler) destroy(c *gin.Context) {
	sid := c.Param("sid")
	ok := h.manager.Destroy(sid)
	c.JSON(http.StatusOK, envelope{Result: ok, StoreID: sid})
}

// get handles GET /get/:sid/*uri. A '*' anywhere in uri routes to
// ResolveAll, exactly as rest_store.py's get() dispatches on
// "'*' in uri".
func (h *Handler) get(c *gin.Context) {
	sid := c.Param("sid")
	store, ok := h.manager.Get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, envelope{Result: false, StoreID: sid})
		return
	}

	uri := c.Param("uri")
	if strings.Contains(uri, "*") {
		results := store.ResolveAll(uri)
		c.JSON(http.StatusOK, envelope{Result: true, StoreID: sid, Data: toDataItems(results)})
		return
	}

	value, found := store.Get(uri)
	if !found {
		c.JSON(http.StatusOK, envelope{Result: false, StoreID: sid, Data: nil})
		return
	}
	c.JSON(http.StatusOK, envelope{Result: true, StoreID: sid, Data: []dataItem{{Key: uri, Value: value}}})
}

// put handles PUT /put/:sid/*uri, reading the new value from form data.
func (h *Handler) put(c *gin.Context) {
	sid := c.Param("sid")
	store, ok := h.manager.Get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, envelope{Result: false, StoreID: sid})
		return
	}

	uri := c.Param("uri")
	value := c.PostForm("value")
	version := int64(store.Put(uri, value))
	c.JSON(http.StatusOK, envelope{Result: true, StoreID: sid, Data: []dataItem{{Key: uri, Value: value, Version: &version}}})
}

// dput handles PATCH /dput/:sid/*uri. The form field "value" is tried
// first as a JSON patch document (the contract rest_store.py documents);
// if it does not parse as JSON it is instead treated as the inline
// "k=v&k2=v2" delta-merge suffix spec.md §4.5 also supports — a
// deliberate generalization since the original's documented example
// value is not itself valid JSON.
func (h *Handler) dput(c *gin.Context) {
	sid := c.Param("sid")
	store, ok := h.manager.Get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, envelope{Result: false, StoreID: sid})
		return
	}

	uri := c.Param("uri")
	raw := c.PostForm("value")

	trimmed := strings.TrimSpace(raw)
	var jsonPatch []byte
	var inlineSuffix string
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		jsonPatch = []byte(trimmed)
	} else {
		inlineSuffix = trimmed
	}

	newVersion, err := store.DPut(uri, jsonPatch, inlineSuffix)
	if err != nil {
		h.log.WithError(err).WithField("uri", uri).Warn("dput failed")
		c.JSON(http.StatusBadRequest, envelope{Result: false, StoreID: sid})
		return
	}
	version := int64(newVersion)
	c.JSON(http.StatusOK, envelope{Result: true, StoreID: sid, Data: []dataItem{{Key: uri, Version: &version}}})
}

// remove handles DELETE /remove/:sid/*uri.
func (h *Handler) remove(c *gin.Context) {
	sid := c.Param("sid")
	store, ok := h.manager.Get(sid)
	if !ok {
		c.JSON(http.StatusNotFound, envelope{Result: false, StoreID: sid})
		return
	}

	uri := c.Param("uri")
	removed := store.Remove(uri)
	c.JSON(http.StatusOK, envelope{Result: removed, StoreID: sid})
}

func toDataItems(kvs []wire.KV) []dataItem {
	out := make([]dataItem, 0, len(kvs))
	for _, kv := range kvs {
		version := int64(kv.Version)
		out = append(out, dataItem{Key: kv.Key, Value: kv.Value, Version: &version})
	}
	return out
}

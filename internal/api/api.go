// Package api serves the record store over HTTP.
package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-records/internal/metrics"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CallerHeader carries the identity mutations are made on behalf of.
const CallerHeader = "X-Caller"

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

var errCallerRequired = fmt.Errorf("%w: %s header required", engine.ErrNotAuthorized, CallerHeader)

type Handler struct {
	Host *engine.Host
	Log  logrus.FieldLogger
}

// NewEngine builds the gin engine with middleware, API routes, health and
// metrics endpoints.
func NewEngine(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(h.Log), metrics.GinMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", CallerHeader, RequestIDHeader},
		ExposeHeaders:   []string{RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.Register(r.Group("/api"))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})
	return r
}

// Register mounts the record routes on g.
func (h *Handler) Register(g gin.IRouter) {
	g.POST("/records", h.StoreRecord)
	g.GET("/records/:id", h.GetRecord)
	g.GET("/records/:id/metadata", h.GetRecordMetadata)
	g.PUT("/records/:id/metadata", h.UpdateRecordMetadata)
	g.POST("/records/:id/access", h.IncrementAccessCount)
	g.GET("/hashes/:hash", h.GetRecordByHash)
	g.GET("/hashes/:hash/registered", h.IsRecordRegistered)
	g.GET("/stats", h.Stats)
	g.GET("/authority", h.GetAuthority)
	g.PUT("/authority", h.SetAuthority)
}

// RequestID tags each request with an id, reusing the client's when given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	code, ok := engine.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case engine.CodeNotAuthorized:
		return http.StatusForbidden
	case engine.CodeRecordNotFound:
		return http.StatusNotFound
	case engine.CodeRecordAlreadyExists, engine.CodeInvalidAuthority:
		return http.StatusConflict
	case engine.CodeMaxRecordsExceeded:
		return http.StatusInsufficientStorage
	default:
		return http.StatusBadRequest
	}
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var domain *engine.Error
	if errors.As(err, &domain) {
		body["code"] = domain.Code
		body["name"] = domain.Name
	}
	c.JSON(StatusOf(err), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// session returns a session for the request's caller, or writes a 403.
func (h *Handler) session(c *gin.Context) (*engine.Session, bool) {
	caller := c.GetHeader(CallerHeader)
	if caller == "" {
		writeError(c, errCallerRequired)
		return nil, false
	}
	return h.Host.As(schema.Principal(caller)), true
}

func paramID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid record id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func paramHash(c *gin.Context) ([]byte, bool) {
	b, err := hex.DecodeString(c.Param("hash"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid hex hash %q", c.Param("hash")))
		return nil, false
	}
	return b, true
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) StoreRecord(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req schema.NewRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := s.StoreRecord(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	rec := h.Host.Store().GetRecord(id)
	if rec == nil {
		writeError(c, engine.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetRecordMetadata(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	meta := h.Host.Store().GetRecordMetadata(id)
	if meta == nil {
		writeError(c, engine.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (h *Handler) UpdateRecordMetadata(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var upd schema.MetadataUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.UpdateRecordMetadata(id, upd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// IncrementAccessCount needs no caller: access tracking is caller-agnostic.
func (h *Handler) IncrementAccessCount(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.Host.Store().IncrementAccessCount(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetRecordByHash(c *gin.Context) {
	hash, ok := paramHash(c)
	if !ok {
		return
	}
	rec := h.Host.Store().GetRecordByHash(hash)
	if rec == nil {
		writeError(c, engine.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) IsRecordRegistered(c *gin.Context) {
	hash, ok := paramHash(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": h.Host.Store().IsRecordRegistered(hash)})
}

func (h *Handler) Stats(c *gin.Context) {
	store := h.Host.Store()
	c.JSON(http.StatusOK, gin.H{
		"count":    store.GetRecordCount(),
		"capacity": store.Capacity(),
		"height":   h.Host.Height(),
	})
}

func (h *Handler) GetAuthority(c *gin.Context) {
	p, set := h.Host.Store().GetAuthorityContract()
	c.JSON(http.StatusOK, gin.H{"principal": p, "set": set})
}

func (h *Handler) SetAuthority(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var input struct {
		Principal string `json:"principal"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.SetAuthorityContract(schema.Principal(input.Principal)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/engine"
	"github.com/tartampluch/go-haid/internal/health"
	"github.com/tartampluch/go-haid/internal/store"
	"github.com/tartampluch/go-haid/internal/tracker"
)

// Service is the application core the API exposes.
type Service interface {
	Table(ctx context.Context, user, lang string) (*tracker.Table, error)
	Calendar(ctx context.Context, user string) ([]byte, error)
	Add(ctx context.Context, user string, in tracker.RecordInput) (engine.Record, error)
	Update(ctx context.Context, user, id string, in tracker.RecordInput) (engine.Record, error)
	Delete(ctx context.Context, user, id string) error
	Ping(ctx context.Context) error
}

// Streamer serves a websocket for one user.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, user string)
}

// cacheItem stores a rendered calendar and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

// APIServer serves the record API, the calendar feeds and the websocket.
type APIServer struct {
	Addr string

	service Service
	hub     Streamer
	router  *gin.Engine

	// calendars maps a user to its latest *cacheItem. Items are replaced,
	// never mutated, so readers need no lock.
	calendars sync.Map
}

// NewAPIServer wires the routes. hub may be nil, which disables the websocket.
func NewAPIServer(addr string, service Service, hub Streamer) *APIServer {
	s := &APIServer{
		Addr:    addr,
		service: service,
		hub:     hub,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	checker := health.NewChecker(config.Version, health.Check{Name: config.CompStore, Target: service})
	r.GET(config.RouteHealth, checker.Ready())
	r.GET(config.RouteLive, checker.Live())

	api := r.Group(config.RouteAPI)
	{
		api.GET(config.RouteRecords, s.handleList)
		api.POST(config.RouteRecords, s.handleCreate)
		api.PUT(config.RouteRecord, s.handleUpdate)
		api.DELETE(config.RouteRecord, s.handleDelete)
		api.GET(config.RouteCalendar, s.handleCalendar)
		api.HEAD(config.RouteCalendar, s.handleCalendar)
		if hub != nil {
			api.GET(config.RouteWS, s.handleWS)
		}
	}

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (s *APIServer) Start(ctx context.Context) error {
	if s.Addr == "" {
		return errors.New(config.ErrListenRequired)
	}

	srv := &http.Server{
		Addr:         s.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyAddr, s.Addr,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// UpdateCalendar atomically replaces the feed served for user.
func (s *APIServer) UpdateCalendar(user string, data []byte) {
	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	s.calendars.Store(user, &cacheItem{
		data:         data,
		etag:         etag,
		lastModified: time.Now().UTC().Format(http.TimeFormat),
	})

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyUser, user,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, etag,
	)
}

// CachedUsers lists the users whose calendar feed is cached.
func (s *APIServer) CachedUsers() []string {
	var users []string
	s.calendars.Range(func(key, _ any) bool {
		users = append(users, key.(string))
		return true
	})
	return users
}

func (s *APIServer) cached(user string) *cacheItem {
	v, ok := s.calendars.Load(user)
	if !ok {
		return nil
	}
	return v.(*cacheItem)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) handleList(c *gin.Context) {
	lang := c.Query(config.QueryLang)
	if lang == "" {
		lang = c.GetHeader(config.HeaderAcceptLanguage)
	}

	table, err := s.service.Table(c.Request.Context(), c.Param(config.ParamUser), lang)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *APIServer) handleCreate(c *gin.Context) {
	var in tracker.RecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.ErrInvalidPayload})
		return
	}

	rec, err := s.service.Add(c.Request.Context(), c.Param(config.ParamUser), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *APIServer) handleUpdate(c *gin.Context) {
	var in tracker.RecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.ErrInvalidPayload})
		return
	}

	rec, err := s.service.Update(c.Request.Context(), c.Param(config.ParamUser), c.Param(config.ParamID), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *APIServer) handleDelete(c *gin.Context) {
	if err := s.service.Delete(c.Request.Context(), c.Param(config.ParamUser), c.Param(config.ParamID)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *APIServer) handleWS(c *gin.Context) {
	s.hub.Serve(c.Writer, c.Request, c.Param(config.ParamUser))
}

// handleCalendar serves the ICS feed of a user with HTTP caching support.
// The first request for a user renders it on demand.
func (s *APIServer) handleCalendar(c *gin.Context) {
	user := c.Param(config.ParamUser)

	item := s.cached(user)
	if item == nil {
		data, err := s.service.Calendar(c.Request.Context(), user)
		if err != nil {
			slog.Error(config.ErrCalendarRender,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyUser, user,
				config.LogKeyError, err,
			)
			c.Header(config.HeaderRetryAfter, config.RetryAfterSeconds)
			c.String(http.StatusServiceUnavailable, config.HTTPMsgCalendarNA)
			return
		}
		s.UpdateCalendar(user, data)
		item = s.cached(user)
	}

	w := c.Writer
	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := c.GetHeader(config.HeaderIfNoneMatch); match == item.etag {
		c.Status(http.StatusNotModified)
		return
	}

	if since := c.GetHeader(config.HeaderIfModifiedSince); since != "" {
		if clientTime, err := time.Parse(http.TimeFormat, since); err == nil {
			if serverTime, err := time.Parse(http.TimeFormat, item.lastModified); err == nil {
				if !serverTime.After(clientTime) {
					c.Status(http.StatusNotModified)
					return
				}
			}
		}
	}

	c.Status(http.StatusOK)
	if c.Request.Method == http.MethodGet {
		if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}

// fail maps service errors onto HTTP statuses.
func (s *APIServer) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": config.HTTPMsgNotFound})
	case errors.Is(err, tracker.ErrInvalidTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"error": config.ErrInvalidPayload})
	default:
		slog.Error(config.HTTPMsgInternalErr,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyPath, c.FullPath(),
			config.LogKeyError, err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": config.HTTPMsgInternalErr})
	}
}

// requestLogger logs each request at debug level through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug(config.MsgRequestServed,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyPath, c.Request.URL.Path,
			config.LogKeyStatus, c.Writer.Status(),
			config.LogKeyDuration, time.Since(start).Milliseconds(),
		)
	}
}

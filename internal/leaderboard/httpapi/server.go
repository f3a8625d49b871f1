// Package httpapi exposes a leaderboard Backend over HTTP and provides the
// matching client.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/model"
)

// Defaults for a served board.
const (
	DefaultAddr  = "127.0.0.1:8088"
	DefaultRPS   = 2
	DefaultBurst = 5
	// LimiterIdleTTL is how long a client's rate limiter survives without
	// requests.
	LimiterIdleTTL = 10 * time.Minute
	// MaxLimit caps the limit query parameter of GET /api/entries.
	MaxLimit = leaderboard.MaxSize
)

// Options configures a Server.
type Options struct {
	// Token, when set, must be presented as a bearer token on writes.
	Token string
	RPS   int
	Burst int
	Now   func() time.Time
}

// Server serves the shared leaderboard.
type Server struct {
	backend leaderboard.Backend
	log     zerolog.Logger
	opts    Options
	router  *gin.Engine

	limiterMu sync.Mutex
	limiters  map[string]*clientLimiter
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type entryRequest struct {
	DisplayName       string `json:"displayName"`
	Rating            int    `json:"rating"`
	PersonalBestSpeed int    `json:"personalBestSpeed"`
}

type entriesResponse struct {
	Entries []model.LeaderboardEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the router for backend.
func NewServer(backend leaderboard.Backend, log zerolog.Logger, opts Options) *Server {
	if opts.RPS <= 0 {
		opts.RPS = DefaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		backend:  backend,
		log:      log,
		opts:     opts,
		limiters: make(map[string]*clientLimiter),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression))
	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		log.Warn().Err(err).Msg("failed to set trusted proxies")
	}

	router.GET("/healthz", s.health)
	api := router.Group("/api")
	api.GET("/entries", s.listEntries)
	api.GET("/entries/:key", s.getEntry)
	api.POST("/entries", s.rateLimit(), s.requireToken(), s.createEntry)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.sweepLoop(ctx, LimiterIdleTTL/2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.log.Info().Msg("shutting down leaderboard server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("leaderboard server shutdown")
		}
	}()

	s.log.Info().Str("addr", addr).Msg("leaderboard server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.opts.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listEntries(c *gin.Context) {
	field, err := model.ParseRankField(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	limit := leaderboard.DefaultSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxLimit)
	}
	entries, err := s.backend.Top(c.Request.Context(), field, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list entries")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list entries"})
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, entriesResponse{Entries: entries})
}

func (s *Server) getEntry(c *gin.Context) {
	key := leaderboard.Key(c.Param("key"))
	entry, ok, err := s.backend.Get(c.Request.Context(), key)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to read entry")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read entry"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) createEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	display, err := leaderboard.ValidateName(req.DisplayName)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Rating < 0 || req.PersonalBestSpeed < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "rating and speed must not be negative"})
		return
	}
	entry := model.LeaderboardEntry{
		DisplayName:       display,
		Key:               leaderboard.Key(display),
		Rating:            req.Rating,
		PersonalBestSpeed: req.PersonalBestSpeed,
		Timestamp:         s.opts.Now().UTC(),
	}
	if err := s.backend.Create(c.Request.Context(), entry); err != nil {
		if errors.Is(err, leaderboard.ErrNameTaken) {
			c.JSON(http.StatusConflict, errorResponse{Error: leaderboard.ErrNameTaken.Error()})
			return
		}
		s.log.Error().Err(err).Str("key", entry.Key).Msg("failed to create entry")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create entry"})
		return
	}
	s.log.Info().Str("key", entry.Key).Int("rating", entry.Rating).Msg("entry created")
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) getLimiter(key string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	now := s.opts.Now()
	if cl, ok := s.limiters[key]; ok {
		cl.lastSeen = now
		return cl.lim
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(s.opts.RPS)), s.opts.Burst)
	s.limiters[key] = &clientLimiter{lim: lim, lastSeen: now}
	return lim
}

// sweepLimiters drops limiters idle for longer than LimiterIdleTTL and
// returns how many were removed.
func (s *Server) sweepLimiters() int {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	now := s.opts.Now()
	removed := 0
	for key, cl := range s.limiters {
		if now.Sub(cl.lastSeen) > LimiterIdleTTL {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

func (s *Server) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweepLimiters(); n > 0 {
				s.log.Debug().Int("removed", n).Msg("evicted idle rate limiters")
			}
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.getLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}

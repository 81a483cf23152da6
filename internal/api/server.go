// Package api exposes the calendar over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/calendard/internal/calendar"
	"github.com/hray3182/calendard/internal/models"
)

type Calendar interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	Occurrences(ctx context.Context, accountID string, start, end time.Time, keyword string) ([]*models.Schedule, error)
	GetSchedule(ctx context.Context, accountID, scheduleID string) (*models.Schedule, error)
	CreateSchedule(ctx context.Context, accountID string, s *models.Schedule) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, accountID string, s *models.Schedule) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, accountID, scheduleID string) error
}

type SyncRequester interface {
	Request(accountID string, direction models.SyncDirection)
}

type Server struct {
	calendar Calendar
	syncs    SyncRequester
	metrics  http.Handler
	loc      *time.Location
	router   *gin.Engine
}

// NewServer builds the router. syncs and metrics may be nil, in which case
// the sync endpoint answers 503 and /metrics is not mounted.
func NewServer(cal Calendar, syncs SyncRequester, metrics http.Handler, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		calendar: cal,
		syncs:    syncs,
		metrics:  metrics,
		loc:      loc,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	accounts := router.Group("/api/accounts")
	accounts.GET("", s.listAccounts)

	account := accounts.Group("/:id", s.loadAccount)
	account.GET("/occurrences", s.listOccurrences)
	account.GET("/schedules/:sid", s.getSchedule)
	account.POST("/schedules", s.createSchedule)
	account.PUT("/schedules/:sid", s.updateSchedule)
	account.DELETE("/schedules/:sid", s.deleteSchedule)
	account.POST("/sync", s.requestSync)
	return router
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) loadAccount(c *gin.Context) {
	acct, err := s.calendar.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		c.Abort()
		return
	}
	c.Set("account", acct)
	c.Next()
}

func account(c *gin.Context) *models.Account {
	return c.MustGet("account").(*models.Account)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calendar.ErrInvalidSchedule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calendar.ErrReadOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Printf("Failed to handle %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"regime-trading-bot/internal/auth"
	"regime-trading-bot/internal/events"
	"regime-trading-bot/internal/ledger"
	"regime-trading-bot/internal/pipeline"
)

const handlerTimeout = 5 * time.Second

// handleHealth reports every registered dependency.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(s.deps.Health))
	healthy := true
	for name, hc := range s.deps.Health {
		if err := hc.HealthCheck(ctx); err != nil {
			deps[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		deps[name] = "healthy"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": deps,
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.authEnabled() {
		errorResponse(c, http.StatusNotFound, "authentication is disabled")
		return
	}
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "username and password are required")
		return
	}
	tok, err := s.deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		var authErr auth.AuthError
		if errors.As(err, &authErr) && authErr == auth.ErrNotConfigured {
			errorResponse(c, http.StatusServiceUnavailable, authErr.Message)
			return
		}
		errorResponse(c, http.StatusUnauthorized, auth.ErrInvalidCredentials.Message)
		return
	}
	successResponse(c, tok)
}

// handleRunNow forces a pipeline run and waits for it. A run that finds
// another one in progress answers 409.
func (s *Server) handleRunNow(c *gin.Context) {
	summary, err := s.deps.Runner.RunNow(c.Request.Context(), pipeline.TriggerManual)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if summary.Skipped {
		c.JSON(http.StatusConflict, gin.H{
			"error":   true,
			"message": "a run is already in progress",
			"run_id":  summary.RunID,
		})
		return
	}
	successResponse(c, summary)
}

func (s *Server) handleLastRun(c *gin.Context) {
	successResponse(c, s.deps.Runner.Last())
}

func (s *Server) handleGetKillSwitch(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	state, err := s.deps.KillSwitch.State(ctx)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, state)
}

type killSwitchRequest struct {
	Engaged *bool  `json:"engaged" binding:"required"`
	Reason  string `json:"reason"`
}

func (s *Server) handleSetKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "engaged is required")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	by := auth.Operator(c)
	var err error
	if *req.Engaged {
		err = s.deps.KillSwitch.Engage(ctx, req.Reason, by)
	} else {
		err = s.deps.KillSwitch.Disengage(ctx, by)
	}
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	state, err := s.deps.KillSwitch.State(ctx)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.publish(events.Event{Type: events.EventKillSwitch, Data: state})
	successResponse(c, state)
}

func (s *Server) handleListCircuits(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	snaps, err := s.deps.Circuits.List(ctx)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, snaps)
}

func (s *Server) handleResetCircuit(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	name := c.Param("name")
	if err := s.deps.Circuits.Reset(ctx, name); err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, gin.H{"name": name, "state": "CLOSED"})
}

func (s *Server) handleOpenTrades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	trades, err := s.deps.Trades.OpenTrades(ctx)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleGetTrade(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	t, err := s.deps.Trades.Get(ctx, c.Param("id"))
	if errors.Is(err, ledger.ErrTradeNotFound) {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, t)
}

type closeTradeRequest struct {
	ExitPrice float64 `json:"exit_price" binding:"required,gt=0"`
}

// handleCloseTrade records an execution confirmation. Closing an already
// closed or unknown trade is not an error; closed reports whether this call
// did the close.
func (s *Server) handleCloseTrade(c *gin.Context) {
	var req closeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "exit_price must be positive")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	id := c.Param("id")
	closed, err := s.deps.Trades.CloseTrade(ctx, id, req.ExitPrice)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := gin.H{"id": id, "closed": closed}
	if closed {
		if t, err := s.deps.Trades.Get(ctx, id); err == nil {
			resp["trade"] = t
			s.publish(events.Event{Type: events.EventTradeClosed, Data: t})
		}
	}
	successResponse(c, resp)
}

func (s *Server) handleListLocks(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	locks, err := s.deps.Locks.List(ctx)
	if err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	successResponse(c, locks)
}

func (s *Server) handleReleaseLock(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()
	symbol := strings.ToUpper(c.Param("symbol"))
	if err := s.deps.Locks.ForceReleaseSymbol(ctx, symbol); err != nil {
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.publish(events.Event{Type: events.EventLockReleased, Data: gin.H{"symbol": symbol, "by": auth.Operator(c), "forced": true}})
	successResponse(c, gin.H{"symbol": symbol, "released": true})
}

func (s *Server) publish(ev events.Event) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(ev)
	}
}

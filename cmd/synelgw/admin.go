package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arloliu/go-synel/logger"
	"github.com/arloliu/go-synel/synel"
	"github.com/gin-gonic/gin"
)

// dialFunc opens a client connection to a terminal bridge.
type dialFunc func(ctx context.Context, host string, port int) (*synel.Client, error)

// sessionSource is the part of the push listener the admin API reads.
type sessionSource interface {
	Sessions() []synel.SessionInfo
	Metrics() *synel.ListenerMetrics
}

type adminServer struct {
	router      *gin.Engine
	sessions    sessionSource
	dial        dialFunc
	defaultPort int
	timeout     time.Duration
	logger      logger.Logger
}

func newAdminServer(src sessionSource, dial dialFunc, defaultPort int, timeout time.Duration, l logger.Logger) *adminServer {
	s := &adminServer{
		router:      gin.New(),
		sessions:    src,
		dial:        dial,
		defaultPort: defaultPort,
		timeout:     timeout,
		logger:      l.With("component", "admin"),
	}

	s.router.Use(gin.Recovery(), s.requestLog())

	s.router.GET("/health", s.health)
	s.router.GET("/sessions", s.listSessions)
	s.router.GET("/metrics", s.metrics)

	terminals := s.router.Group("/terminals/:host")
	terminals.GET("/status", s.terminalStatus)
	terminals.POST("/message", s.displayMessage)

	return s
}

func (s *adminServer) Handler() http.Handler {
	return s.router
}

func (s *adminServer) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("admin request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *adminServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *adminServer) listSessions(c *gin.Context) {
	sessions := s.sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"data":  sessions,
		"total": len(sessions),
	})
}

func (s *adminServer) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.Metrics().Snapshot())
}

type terminalTarget struct {
	host       string
	port       int
	terminalID int
}

func (s *adminServer) target(c *gin.Context) (terminalTarget, bool) {
	t := terminalTarget{host: c.Param("host"), port: s.defaultPort}

	if v := c.Query("port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port"})
			return t, false
		}
		t.port = port
	}

	id, err := strconv.Atoi(c.DefaultQuery("terminal", "0"))
	if err != nil || id < 0 || id > synel.MaxTerminalID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid terminal id"})
		return t, false
	}
	t.terminalID = id

	return t, true
}

// withTerminal dials the bridge, runs fn against the addressed terminal and
// closes the connection again.
func (s *adminServer) withTerminal(c *gin.Context, t terminalTarget, fn func(ctx context.Context, term *synel.Terminal) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	client, err := s.dial(ctx, t.host, t.port)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error(), "kind": synel.KindOf(err).String()})
		return
	}
	defer client.Close()

	term, err := client.Terminal(t.terminalID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := fn(ctx, term); err != nil {
		s.logger.Warn("terminal request failed", "host", t.host, "terminal", t.terminalID, "error", err)
		c.JSON(statusOf(err), gin.H{"error": err.Error(), "kind": synel.KindOf(err).String()})
	}
}

func (s *adminServer) terminalStatus(c *gin.Context) {
	t, ok := s.target(c)
	if !ok {
		return
	}

	s.withTerminal(c, t, func(ctx context.Context, term *synel.Terminal) error {
		st, err := term.GetStatus(ctx)
		if err != nil {
			return err
		}

		c.JSON(http.StatusOK, gin.H{
			"terminal":              term.ID(),
			"hardware_model":        st.HardwareModel,
			"hardware_revision":     st.HardwareRevision,
			"firmware_version":      st.FirmwareVersion,
			"active_function":       string(st.ActiveFunction),
			"clock":                 st.Clock,
			"polling_interval":      st.PollingInterval.String(),
			"undelivered_records":   st.UndeliveredRecords,
			"memory_usage_percent":  st.MemoryUsagePercent,
			"transparent_mode":      st.TransparentMode,
			"fingerprint_enabled":   st.FingerprintEnabled,
			"fingerprint_templates": st.FingerprintTemplates,
			"fingerprint_capacity":  st.FingerprintCapacity,
		})

		return nil
	})
}

type displayRequest struct {
	Seconds int    `json:"seconds"`
	Text    string `json:"text" binding:"required"`
	Align   string `json:"align"`
}

func (s *adminServer) displayMessage(c *gin.Context) {
	t, ok := s.target(c)
	if !ok {
		return
	}

	var req displayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	align, err := synel.ParseAlignment(req.Align)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.withTerminal(c, t, func(ctx context.Context, term *synel.Terminal) error {
		if err := term.DisplayMessage(ctx, req.Seconds, req.Text, align); err != nil {
			return err
		}

		c.JSON(http.StatusOK, gin.H{"terminal": term.ID(), "status": "displayed"})

		return nil
	})
}

func statusOf(err error) int {
	switch synel.KindOf(err) {
	case synel.KindTimeout:
		return http.StatusGatewayTimeout
	case synel.KindNotConnected, synel.KindDisconnected, synel.KindInvalidCRC:
		return http.StatusBadGateway
	case synel.KindCanceled:
		return http.StatusServiceUnavailable
	}

	if errors.Is(err, synel.ErrTerminalBusy) {
		return http.StatusConflict
	}
	if errors.Is(err, synel.ErrNonASCII) || errors.Is(err, synel.ErrDataTooLong) {
		return http.StatusBadRequest
	}

	return http.StatusBadGateway
}

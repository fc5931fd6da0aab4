package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"aquabot/internal/metrics"
	"aquabot/internal/record"
	logx "aquabot/pkg/logx"
)

func init() { gin.SetMode(gin.ReleaseMode) }

// routes builds the gin engine for cfg.
func (s *Server) routes(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.requestLog())

	r.POST(cfg.Path, s.handleWebhook(cfg))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.Metrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.Pprof.Enabled {
		g := r.Group("/debug/pprof", tokenAuth(cfg.Pprof.Token))
		g.GET("/", gin.WrapF(hpprof.Index))
		g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
		g.GET("/profile", gin.WrapF(hpprof.Profile))
		g.GET("/symbol", gin.WrapF(hpprof.Symbol))
		g.POST("/symbol", gin.WrapF(hpprof.Symbol))
		g.GET("/trace", gin.WrapF(hpprof.Trace))
		g.GET("/:profile", func(c *gin.Context) {
			hpprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
		})
	}
	return r
}

func (s *Server) handleWebhook(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := s.tracer.Start(c.Request.Context(), "webhook.receive")
		defer span.End()

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				c.String(http.StatusRequestEntityTooLarge, "too large")
				return
			}
			c.String(http.StatusBadRequest, "bad body")
			return
		}

		id := uuid.NewString()
		log := s.log.With(logx.String("delivery", id))
		if cfg.DumpDir != "" {
			if path, err := dump(cfg.DumpDir, id, body); err != nil {
				log.Warn("webhook dump failed", logx.Err(err))
			} else {
				log.Debug("webhook saved", logx.String("file", path))
			}
		}

		ev, err := record.Decode(body)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("invalid", "").Inc()
			log.Warn("webhook body rejected", logx.Err(err), logx.Int("bytes", len(body)))
			c.String(http.StatusBadRequest, "invalid json")
			return
		}
		ev.DeliveryID = id
		ev.ReceivedAt = time.Now()

		span.SetAttributes(
			attribute.String("webhook.resource", ev.Resource),
			attribute.String("webhook.status", ev.Status),
			attribute.Int64("webhook.company_id", ev.CompanyID.Int64()),
			attribute.Int64("webhook.resource_id", ev.ResourceID.Int64()),
		)
		metrics.WebhookEventsTotal.WithLabelValues(labelOr(ev.Resource), labelOr(ev.Status)).Inc()
		log.Info("webhook in",
			logx.String("resource", ev.Resource),
			logx.String("status", ev.Status),
			logx.Int64("company_id", ev.CompanyID.Int64()),
			logx.Int64("resource_id", ev.ResourceID.Int64()),
			logx.String("phone", record.MaskPhone(ev.Data.Phone())))

		// Acknowledge regardless of queue state; the platform does not need to retry.
		if err := s.sink.Enqueue(ev); err != nil {
			log.Warn("webhook event dropped", logx.Err(err))
			span.RecordError(err)
		}
		c.String(http.StatusOK, "ok")
	}
}

func labelOr(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func dump(dir, id string, body []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(time.Now().UTC().Format(time.RFC3339Nano))
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", ts, id[:8]))
	return path, os.WriteFile(path, body, 0o644)
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("http handler panic",
					logx.String("path", c.Request.URL.Path),
					logx.Any("panic", fmt.Sprint(r)),
					logx.Stack(string(debug.Stack())))
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if !s.log.Enabled(logx.LevelDebug) {
			return
		}
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}

// tokenAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func tokenAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailservice/health"
	"mailservice/queue"
)

// APIKeyHeader carries the static key every non-health endpoint requires.
const APIKeyHeader = "X-API-Key"

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	APIKey      string
	CORSOrigins []string
	Processor   *queue.Processor
	Queue       *queue.Bounded
	Prober      health.Prober
	Log         *zap.Logger
}

// NewRouter wires every route of the service.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	if len(deps.CORSOrigins) > 0 {
		r.Use(corsMiddleware(deps.CORSOrigins))
	}

	r.GET("/health", health.Liveness)
	r.GET("/metrics", health.Metrics())

	h := &handlers{processor: deps.Processor, queue: deps.Queue, log: log}
	authed := r.Group("/", requireAPIKey(deps.APIKey))
	authed.POST("/send", h.sendSync)
	authed.POST("/send_async", h.sendAsync)
	authed.GET("/smtppostserv", health.SMTP(deps.Prober))
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", APIKeyHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// NewServer returns the http.Server for handler bound to addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requireAPIKey rejects requests whose X-API-Key does not match key.
// An empty key rejects everything.
func requireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "Invalid API key"})
			return
		}
		c.Next()
	}
}

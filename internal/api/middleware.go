package api

import (
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"progitek/server/internal/authz"
	"progitek/server/internal/metrics"
	"progitek/server/internal/services"
)

const (
	actorKey    = "actor"
	tokenCookie = "token"
)

// RequestLogger logs every request with its status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		if path == "/metrics" || path == "/health" {
			return
		}
		log.Printf("🌐 %s %s - Status: %d - Latency: %v", method, path, c.Writer.Status(), time.Since(start))
	}
}

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// CORS lets the configured frontend origins call the API. origins is a
// comma separated list; only listed origins get credentialed access. "*"
// opens the API to every origin without credentials.
func CORS(origins string) gin.HandlerFunc {
	allowed := parseOrigins(origins)
	wildcard := containsOrigin(allowed, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		h := c.Writer.Header()
		switch {
		case origin != "" && containsOrigin(allowed, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		case wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseOrigins(origins string) []string {
	var list []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			list = append(list, o)
		}
	}
	return list
}

func containsOrigin(list []string, origin string) bool {
	for _, o := range list {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// checkOrigin accepts websocket handshakes without an Origin header
// (non-browser clients), from the API's own host, or from a configured origin.
func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if containsOrigin(origins, "*") || containsOrigin(origins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// RequireAuth resolves the caller from the bearer token or the token cookie
// and stores it as the request actor. Websocket handshakes may also pass
// ?token= since browsers cannot set headers on them.
func RequireAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			respondError(c, services.ErrInvalidToken)
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(actorKey, services.Actor{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
			IP:     c.ClientIP(),
		})
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("token")
	}
	return ""
}

// RequireCapability rejects callers whose role lacks capability.
func RequireCapability(capability authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if !actor.Can(capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{
				Success: false,
				Message: "Accès refusé: " + string(capability),
			})
			return
		}
		c.Next()
	}
}

// actorFrom returns the authenticated actor. Outside RequireAuth it is the
// zero Actor, which holds no capability.
func actorFrom(c *gin.Context) services.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{IP: c.ClientIP()}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/actor"
	"gigmarket/internal/util"
	"gigmarket/pkg/trace"
)

const actorKey = "actor"

// TraceMiddleware seeds every request with a trace id. An inbound
// X-Trace-ID header is honored so a caller's id follows the request
// through logs and outbox publishes; otherwise a fresh one is minted.
// The id is echoed back on the response for correlation.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Writer.Header().Set(trace.HeaderName(), traceID)
		c.Next()
	}
}

// AuthMiddleware authenticates the request and narrows the caller into the
// closed actor type once, so handlers never branch on raw role strings.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		userID, role, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		who, err := actor.FromClaims(userID, role)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}

		c.Set(actorKey, who)
		c.Next()
	}
}

// currentActor retrieves the authenticated actor set by AuthMiddleware.
func currentActor(c *gin.Context) (actor.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return nil, false
	}
	who, ok := v.(actor.Actor)
	return who, ok
}

package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests that hit no registered route, keeping the
// path label bounded no matter which unknown paths clients request.
const unmatchedRoute = "unmatched"

// ScrapePaths are polled by monitoring and logged at trace level only.
var ScrapePaths = []string{"/metrics", "/health"}

// RequestLogger logs one event per diagnostics request. Paths in quiet are
// demoted to trace unless they fail.
func RequestLogger(logger zerolog.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)

		var event *zerolog.Event
		switch _, polled := skip[route]; {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case polled:
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		if limit := c.Query("limit"); limit != "" {
			event = event.Str("limit", limit)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("diagnostics request")
	}
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

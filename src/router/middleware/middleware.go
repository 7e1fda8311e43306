package middleware

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/juju/ratelimit"

	"github.com/pyrohost/resticapi/src/repository"
)

const (
	RequestIDKey  = "request_id"
	RepositoryKey = "repository"
	LoggerKey     = "logger"
)

// AttachRequestID attaches a unique ID to the incoming HTTP request so that
// any errors that are generated or returned to the client will include this
// reference allowing for an easier time identifying the specific request
// that failed for the user.
func AttachRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set(RequestIDKey, id)
		c.Set(LoggerKey, log.WithField(RequestIDKey, id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// ExtractLogger pulls the request scoped logger out of the gin context.
func ExtractLogger(c *gin.Context) *log.Entry {
	if v, ok := c.Get(LoggerKey); ok {
		return v.(*log.Entry)
	}
	return log.WithField(RequestIDKey, c.GetString(RequestIDKey))
}

// RequestLogger logs every request once it has been handled.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ExtractLogger(c).WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientip": c.ClientIP(),
		}).Debug("handled http request")
	}
}

// SetAccessControlHeaders allows cross-origin requests from any origin, with
// any method and any header. Preflight requests are answered immediately.
func SetAccessControlHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")

		methods := c.GetHeader("Access-Control-Request-Method")
		if methods == "" {
			methods = strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
			}, ", ")
		}
		c.Header("Access-Control-Allow-Methods", methods)

		headers := c.GetHeader("Access-Control-Request-Headers")
		if headers == "" {
			headers = "*"
		}
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit limits the API as a whole to rate requests per second with the
// given burst. A non-positive rate disables the limit.
func RateLimit(rate float64, burst int64) gin.HandlerFunc {
	if rate <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if burst <= 0 {
		burst = int64(math.Max(1, math.Ceil(rate)))
	}
	bucket := ratelimit.NewBucketWithRate(rate, burst)
	return func(c *gin.Context) {
		if bucket.TakeAvailable(1) == 0 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, slow down.",
			})
			return
		}
		c.Next()
	}
}

// AttachRepository attaches the repository instance to the gin context.
func AttachRepository(r *repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RepositoryKey, r)
		c.Next()
	}
}

// ExtractRepository extracts the repository from the gin context.
func ExtractRepository(c *gin.Context) *repository.Repository {
	if v, ok := c.Get(RepositoryKey); ok {
		return v.(*repository.Repository)
	}
	panic("request does not have a repository set in the context")
}

// CaptureAndAbort aborts the request with a JSON error body. Validation
// failures are the caller's fault and return a 400, anything else is a 500
// and is logged along with the request ID.
func CaptureAndAbort(c *gin.Context, err error) {
	if repository.IsValidationError(err) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ExtractLogger(c).WithFields(log.Fields{
		"path": c.Request.URL.Path,
		"kind": repository.KindOf(err),
	}).WithError(err).Error("error while handling request")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

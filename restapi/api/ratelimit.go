package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimitConcurrency lets at most limit requests through at a time, the rest wait for a slot
// or give up when their request is cancelled. limit <= 0 disables the limit.
func LimitConcurrency(limit int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	sema := make(chan struct{}, limit)
	return func(c *gin.Context) {
		select {
		case sema <- struct{}{}:
		case <-c.Request.Context().Done():
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled while waiting for the device"})
			return
		}
		defer func() { <-sema }()
		c.Next()
	}
}

// RateLimit rejects requests with 429 once limiter runs out of tokens.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

package httpx

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	CtxRequestIDKey = "request_id"
)

// RequestID: クライアント指定の X-Request-ID があれば引き継ぎ、無ければ UUID を振る
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom: ミドルウェア未適用なら "-"
func RequestIDFrom(c *gin.Context) string {
	if id := c.GetString(CtxRequestIDKey); id != "" {
		return id
	}
	return "-"
}

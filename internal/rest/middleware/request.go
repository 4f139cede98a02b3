package middleware

import (
	"context"

	"github.com/entbill/entbill/internal/types"
	"github.com/gin-gonic/gin"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's
// when one is supplied.
func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUID()
	}

	ctx = context.WithValue(ctx, types.CtxRequestID, requestID)
	c.Request = c.Request.WithContext(ctx)

	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}

// TenantMiddleware resolves the tenant and environment scope from request
// headers, falling back to defaults for single-tenant deployments.
func TenantMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID := c.GetHeader(types.HeaderTenantID)
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	ctx = types.SetTenantID(ctx, tenantID)

	if environmentID := c.GetHeader(types.HeaderEnvironmentID); environmentID != "" {
		ctx = types.SetEnvironmentID(ctx, environmentID)
	}

	userID := c.GetHeader(types.HeaderUserID)
	if userID == "" {
		userID = types.DefaultUserID
	}
	ctx = types.SetUserID(ctx, userID)

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

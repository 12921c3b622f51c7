package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
)

const identityKey = "identity"

// AuthMiddleware accepts end-user bearer tokens only.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return authenticate(jwtManager.ParseUserToken)
}

// StaffAuthMiddleware accepts staff bearer tokens only.
func StaffAuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return authenticate(jwtManager.ParseStaffToken)
}

func authenticate(parse func(string) (auth.Identity, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			httperr.WriteUnauthorized(c, "missing bearer token")
			return
		}
		id, err := parse(token)
		if err != nil {
			_ = c.Error(err)
			httperr.WriteUnauthorized(c, "invalid token")
			return
		}
		c.Set(identityKey, id)
		c.Set("user_id", id.ID)
		c.Next()
	}
}

// GetIdentity returns the caller set by the auth middleware.
func GetIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatparty/tools/errs"
	jwt "chatparty/tools/security"
)

// context keys the handlers read the verified identity from
const (
	CtxUserIDKey      = "authUserId"
	CtxDisplayNameKey = "authDisplayName"
)

type Options struct {
	JWT jwt.Options

	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions(jwtOpts jwt.Options) *Options {
	return &Options{
		JWT:                       jwtOpts,
		HeaderToken:               "authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the bearer token and stores the (userId,
// displayName) pair on the request context. No credential checks happen
// here; the token issuer already did them.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenExpired)
			return
		}

		ident, err := jwt.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenExpired.WithDetail(err.Error()))
			return
		}

		c.Set(CtxUserIDKey, ident.UserID)
		c.Set(CtxDisplayNameKey, ident.DisplayName)
		c.Next()
	}
}

// Identity pulls the verified pair back out of the request context.
func Identity(c *gin.Context) (userID, displayName string) {
	return c.GetString(CtxUserIDKey), c.GetString(CtxDisplayNameKey)
}

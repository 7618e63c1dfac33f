package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/promptrelay/promptrelay/internal/config"
)

const wildcard = "*"

// Cors builds the CORS middleware. A "*" origin or header allows any value;
// the request's own Origin and requested headers are echoed back so that
// credentialed requests are accepted by browsers. The defaults are meant for
// development only.
func Cors(corsConfig config.CorsConfig) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     corsConfig.AllowMethods,
		AllowCredentials: corsConfig.AllowCredentials,
		ExposeHeaders:    []string{RequestIDHeader},
	}

	if slices.Contains(corsConfig.AllowOrigins, wildcard) {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = corsConfig.AllowOrigins
	}

	echoHeaders := slices.Contains(corsConfig.AllowHeaders, wildcard)
	if !echoHeaders {
		cfg.AllowHeaders = corsConfig.AllowHeaders
	}

	handler := cors.New(cfg)
	if !echoHeaders {
		return handler
	}
	return func(c *gin.Context) {
		if isPreflight(c.Request) {
			if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
				c.Header("Access-Control-Allow-Headers", requested)
			}
		}
		handler(c)
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

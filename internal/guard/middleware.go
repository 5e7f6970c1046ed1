package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stockpile-dev/stockpile/internal/session"
)

// Middleware applies g to every request of a route group. While the
// session resolves, placeholder renders instead of the route; a redirect
// is a 303 so form posts become plain GETs.
func Middleware(g Guard, store session.Reader, placeholder gin.HandlerFunc, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.Decide(store.Snapshot(), c.Request.URL.RequestURI())

		switch d.Outcome {
		case Allow:
			c.Next()
		case Redirect:
			log.Debug().
				Str("path", c.Request.URL.Path).
				Str("location", d.Location).
				Msg("Guard redirect")
			c.Redirect(http.StatusSeeOther, d.Location)
			c.Abort()
		default:
			placeholder(c)
			c.Abort()
		}
	}
}

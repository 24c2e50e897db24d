package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// LimitObserver is told about denied requests.
type LimitObserver interface {
	RateLimited(route string)
}

// NewUserRateLimit limits requests per authenticated user. rate uses the
// limiter format, e.g. "5-H". Must run after RequireUser.
func NewUserRateLimit(rate string, observer LimitObserver, log *logrus.Entry) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}
	lim := limiter.New(memory.NewStore(), r)

	return func(c *gin.Context) {
		key := c.FullPath() + ":" + currentUserID(c)
		lc, err := lim.Get(c, key)
		if err != nil {
			// Fail open: a limiter fault must not block the request.
			log.WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			retry := time.Until(time.Unix(lc.Reset, 0))
			setRetryAfter(c, retry)
			if observer != nil {
				observer.RateLimited(c.FullPath())
			}
			abortWithError(c, http.StatusTooManyRequests, "too many test alerts, try again later")
			return
		}
		c.Next()
	}, nil
}

func setRetryAfter(c *gin.Context, d time.Duration) {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second) // Round up
	c.Header("Retry-After", strconv.FormatInt(secs, 10))
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	sessionHeader     = "X-Session-ID"
	sessionContextKey = "session"
)

// SessionMiddleware exige una sesión vigente y la deja en el contexto
func (api *API) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := api.loadSession(c)
		if err != nil {
			api.logger.WithError(err).Error("Error resolving session")
			c.JSON(http.StatusInternalServerError, models.NewInternalError("Error resolving session"))
			c.Abort()
			return
		}
		if session == nil {
			c.JSON(http.StatusUnauthorized, models.NewUnauthorizedError("Valid session required"))
			c.Abort()
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// OptionalSessionMiddleware carga la sesión si existe, sin exigirla
func (api *API) OptionalSessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := api.loadSession(c)
		if err != nil {
			api.logger.WithError(err).Warn("Error resolving optional session")
		}
		if session != nil {
			c.Set(sessionContextKey, session)
		}
		c.Next()
	}
}

// OperatorOnly restringe la ruta a sesiones de operador
func (api *API) OperatorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := currentSession(c)
		if session == nil || session.Role != models.RoleOperator {
			c.JSON(http.StatusForbidden, models.NewForbiddenError("Operator session required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// loadSession busca el id en el header o en la cookie. Retorna nil sin error
// si no hay sesión o ya no es válida.
func (api *API) loadSession(c *gin.Context) (*models.Session, error) {
	raw := c.GetHeader(sessionHeader)
	if raw == "" {
		if cookie, err := c.Cookie(api.cfg.Session.CookieName); err == nil {
			raw = cookie
		}
	}
	if raw == "" {
		return nil, nil
	}

	session, err := api.sessions.Resolve(c.Request.Context(), raw)
	if errors.Is(err, services.ErrSessionNotFound) {
		return nil, nil
	}
	return session, err
}

func currentSession(c *gin.Context) *models.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*models.Session)
	return session
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter mantiene un token bucket por IP de cliente
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	lastGC   time.Time
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		idle:     10 * time.Minute,
		lastGC:   time.Now(),
	}
}

func (l *ipRateLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.idle {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, key)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimitMiddleware limita las peticiones por IP según RATE_LIMIT_DEFAULT
// (por minuto) y RATE_LIMIT_BURST
func (api *API) RateLimitMiddleware() gin.HandlerFunc {
	limiter := newIPRateLimiter(api.cfg.RateLimit.Default, api.cfg.RateLimit.Burst)

	return func(c *gin.Context) {
		now := time.Now()
		reservation := limiter.get(c.ClientIP(), now).ReserveN(now, 1)
		if !reservation.OK() {
			c.JSON(http.StatusTooManyRequests, models.NewRateLimitedError("Too many requests", time.Minute))
			c.Abort()
			return
		}
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			api.logger.WithFields(logrus.Fields{
				"ip":   c.ClientIP(),
				"path": c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			c.Header("Retry-After", retryAfterSeconds(delay))
			c.JSON(http.StatusTooManyRequests, models.NewRateLimitedError("Too many requests", delay))
			c.Abort()
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

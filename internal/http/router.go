package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/geocoder89/kidshub/internal/http/handlers"
	"github.com/geocoder89/kidshub/internal/http/middlewares"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Log            *slog.Logger
	Env            string
	ServiceName    string
	AllowedOrigins []string
	AnonKey        string

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	JWT           *auth.Manager
	Accounts      handlers.AccountStore
	RefreshTokens handlers.RefreshTokenStore
	Rows          store.Store
	Enrollments   handlers.EnrollmentWriter
	Pingers       map[string]handlers.Pinger

	// RateLimitRedis, when set, shares rate limit counters between replicas.
	RateLimitRedis redis.Scripter
	// AuthRateLimit is requests per minute per client IP on /auth/v1.
	AuthRateLimit int
	// WriteRateLimit is data API writes per minute per user.
	WriteRateLimit int
}

func (d Deps) limiter(name string, perMinute, fallback int) *middlewares.RateLimiter {
	if perMinute <= 0 {
		perMinute = fallback
	}
	if d.RateLimitRedis != nil {
		return middlewares.NewRedisRateLimiter(d.RateLimitRedis, "kidshub:ratelimit:"+name+":", perMinute, time.Minute)
	}
	return middlewares.NewRateLimiter(perMinute, time.Minute)
}

func NewRouter(d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.AllowedOrigins))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())

	health := handlers.NewHealthHandler(d.Pingers)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authMW := middlewares.NewAuthMiddleware(d.JWT)
	signedIn := []gin.HandlerFunc{authMW.RequireAuth(), authMW.RequireRole(auth.RoleAuthenticated)}

	authLimit := d.limiter("auth", d.AuthRateLimit, 30).RateLimiterMiddleware(middlewares.KeyByIP)

	authH := handlers.NewAuthHandler(d.Accounts, d.RefreshTokens, d.JWT, d.Prom, d.Log)
	authV1 := r.Group("/auth/v1", middlewares.RequireAPIKey(d.AnonKey))
	{
		authV1.POST("/signup", authLimit, authH.SignUp)
		authV1.POST("/token", authLimit, authH.Token)
		authV1.POST("/logout", append(signedIn, authH.Logout)...)
		authV1.GET("/user", append(signedIn, authH.User)...)
		authV1.PUT("/user", append(signedIn, authH.UpdateUser)...)
	}

	restH := handlers.NewRestHandler(d.Rows, d.Enrollments, d.Log)
	writeLimit := d.limiter("rest", d.WriteRateLimit, 120).RateLimiterMiddleware(middlewares.KeyByUserOrIP)
	restV1 := r.Group("/rest/v1", middlewares.RequireAPIKey(d.AnonKey), authMW.OptionalAuth())
	{
		restV1.GET("/:table", restH.Select)
		restV1.POST("/:table", writeLimit, restH.Insert)
		restV1.PATCH("/:table", writeLimit, restH.Update)
		restV1.DELETE("/:table", writeLimit, restH.Delete)
	}

	return r
}

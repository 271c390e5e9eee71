package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"transit/internal/handler"
	"transit/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler *handler.TripHandler
	Auth        *middleware.AuthMiddleware
	RedisClient redis.Cmdable // nil disables idempotency keys
	NewRelicApp *newrelic.Application
	Logger      *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recover(deps.Logger))
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	if deps.Auth != nil {
		v1.Use(deps.Auth.Handler())
	}
	if deps.RedisClient != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	}
	{
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.GetAll)
			trips.GET("/reference/:referenceId", deps.TripHandler.GetTripByReference)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.GET("/:id/capacity", deps.TripHandler.GetCapacity)
			trips.PATCH("/:id", deps.TripHandler.UpdateTrip)
			trips.DELETE("/:id", deps.TripHandler.DeleteTrip)
			trips.PATCH("/:id/start", deps.TripHandler.StartTrip)
			trips.PATCH("/:id/complete", deps.TripHandler.CompleteTrip)
			trips.PATCH("/:id/cancel", deps.TripHandler.CancelTrip)
		}

		userTrips := v1.Group("/user-trips")
		{
			userTrips.POST("", deps.TripHandler.CreateUserTrip)
			userTrips.GET("", deps.TripHandler.GetAllUserTrips)
			userTrips.GET("/:id", deps.TripHandler.GetUserTrip)
			userTrips.PATCH("/:id", deps.TripHandler.UpdateUserTrip)
		}
	}

	return router
}

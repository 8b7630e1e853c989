package api

import (
	"context"
	"net/http"
	"time"

	"github.com/example/ec-order-events/internal/api/middleware"
	"github.com/example/ec-order-events/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter builds the order service routes.
func NewRouter(handlers *Handlers, m *metrics.Metrics, gatherer prometheus.Gatherer, db Pinger, origins []string) *gin.Engine {
	r := newEngine(m, gatherer, db, origins)

	// Products
	r.GET("/products", handlers.GetProducts)
	r.POST("/products", handlers.CreateProduct)
	r.GET("/products/:id", handlers.GetProduct)

	// Orders
	r.GET("/orders", handlers.GetOrders)
	r.POST("/orders", handlers.PlaceOrder)
	r.GET("/orders/:id", handlers.GetOrder)
	r.GET("/orders/customer/:customerId", handlers.GetCustomerOrders)

	return r
}

// NewCustomerRouter builds the customer service routes.
func NewCustomerRouter(handlers *CustomerHandlers, m *metrics.Metrics, gatherer prometheus.Gatherer, db Pinger, origins []string) *gin.Engine {
	r := newEngine(m, gatherer, db, origins)

	r.GET("/customers", handlers.GetCustomers)
	r.POST("/customers", handlers.CreateCustomer)
	r.GET("/customers/:id", handlers.GetCustomer)
	r.GET("/customers/email/:email", handlers.GetCustomerByEmail)
	r.GET("/customers/:id/orders", handlers.GetCustomerOrders)

	return r
}

func newEngine(m *metrics.Metrics, gatherer prometheus.Gatherer, db Pinger, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(), middleware.Metrics(m), middleware.CORS(origins))

	r.GET("/healthz", healthz(db))
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}
	return r
}

func healthz(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

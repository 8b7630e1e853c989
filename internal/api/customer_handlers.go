package api

import (
	"net/http"

	"github.com/example/ec-order-events/internal/command"
	"github.com/example/ec-order-events/internal/query"
	"github.com/gin-gonic/gin"
)

// CustomerHandlers serves the customer service API.
type CustomerHandlers struct {
	cmdHandler   *command.CustomerHandler
	queryHandler *query.CustomerHandler
}

func NewCustomerHandlers(cmdHandler *command.CustomerHandler, queryHandler *query.CustomerHandler) *CustomerHandlers {
	return &CustomerHandlers{cmdHandler: cmdHandler, queryHandler: queryHandler}
}

func (h *CustomerHandlers) CreateCustomer(c *gin.Context) {
	var cmd command.RegisterCustomer
	if err := c.ShouldBindJSON(&cmd); err != nil {
		respondBindError(c, err)
		return
	}

	customer, err := h.cmdHandler.RegisterCustomer(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *CustomerHandlers) GetCustomers(c *gin.Context) {
	customers, err := h.queryHandler.ListCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (h *CustomerHandlers) GetCustomer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	customer, err := h.queryHandler.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CustomerHandlers) GetCustomerByEmail(c *gin.Context) {
	customer, err := h.queryHandler.GetCustomerByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *CustomerHandlers) GetCustomerOrders(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	orders, err := h.queryHandler.CustomerOrders(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

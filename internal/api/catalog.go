package api

import (
	"net/http"

	"retail-core/internal/auth"
	"retail-core/internal/service"
	"retail-core/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) productRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.ProductsRead), h.listProducts)
	g.GET("/demand", RequirePermission(auth.ReportsRead), h.productDemand)
	g.GET("/:id", RequirePermission(auth.ProductsRead), h.getProduct)
	g.GET("/:id/stock-history", RequirePermission(auth.ProductsRead), h.stockHistory)
	g.POST("", RequirePermission(auth.ProductsWrite), h.createProduct)
	g.PUT("/:id", RequirePermission(auth.ProductsWrite), h.updateProduct)
	g.DELETE("/:id", RequirePermission(auth.ProductsDelete), h.deleteProduct)
}

func (h *Handler) customerRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.CustomersRead), h.listCustomers)
	g.GET("/:id", RequirePermission(auth.CustomersRead), h.getCustomer)
	g.GET("/:id/history", RequirePermission(auth.CustomersRead), h.customerHistory)
	g.POST("", RequirePermission(auth.CustomersWrite), h.createCustomer)
	g.PUT("/:id", RequirePermission(auth.CustomersWrite), h.updateCustomer)
	g.DELETE("/:id", RequirePermission(auth.CustomersDelete), h.deleteCustomer)
}

func (h *Handler) listProducts(c *gin.Context) {
	filter := store.ProductFilter{Page: pageQuery(c), Search: c.Query("search")}
	products, total, err := h.svc.Products.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, products, filter.Page, total)
}

func (h *Handler) productDemand(c *gin.Context) {
	report, err := h.svc.Analytics.Demand(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	product, err := h.svc.Products.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) stockHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	history, err := h.svc.Products.StockHistory(c.Request.Context(), id, intQuery(c, "limit"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if !bind(c, &req) {
		return
	}
	product, err := h.svc.Products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ProductRequest
	if !bind(c, &req) {
		return
	}
	product, err := h.svc.Products.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Products.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func (h *Handler) listCustomers(c *gin.Context) {
	filter := store.CustomerFilter{Page: pageQuery(c), Search: c.Query("search")}
	customers, total, err := h.svc.Customers.ListCustomers(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, customers, filter.Page, total)
}

func (h *Handler) getCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	customer, err := h.svc.Customers.GetCustomer(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *Handler) customerHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	history, err := h.svc.Customers.PurchaseHistory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) createCustomer(c *gin.Context) {
	var req service.CustomerRequest
	if !bind(c, &req) {
		return
	}
	customer, err := h.svc.Customers.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *Handler) updateCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CustomerRequest
	if !bind(c, &req) {
		return
	}
	customer, err := h.svc.Customers.UpdateCustomer(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *Handler) deleteCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Customers.DeleteCustomer(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Customer deleted"})
}

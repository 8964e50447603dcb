package api

import (
	"net/http"
	"strconv"

	"retail-core/internal/auth"
	"retail-core/internal/service"
	"retail-core/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) orderRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.OrdersRead), h.listOrders)
	g.GET("/:id", RequirePermission(auth.OrdersRead), h.getOrder)
	g.POST("", RequirePermission(auth.OrdersCreate), h.createOrder)
	g.PUT("/:id", RequirePermission(auth.OrdersEdit), h.updateOrder)
	g.DELETE("/:id", RequirePermission(auth.OrdersDelete), h.deleteOrder)
}

func (h *Handler) returnRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.ReturnsRead), h.listReturns)
	g.GET("/:id", RequirePermission(auth.ReturnsRead), h.getReturn)
	g.POST("", RequirePermission(auth.ReturnsCreate), h.createReturn)
	g.PUT("/:id/approve", RequirePermission(auth.ReturnsDecide), h.approveReturn)
	g.PUT("/:id/reject", RequirePermission(auth.ReturnsDecide), h.rejectReturn)
	g.DELETE("/:id", RequirePermission(auth.ReturnsDelete), h.deleteReturn)
}

func (h *Handler) invoiceRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.InvoicesRead), h.listInvoices)
	g.GET("/:id", RequirePermission(auth.InvoicesRead), h.getInvoice)
	g.POST("/generate", RequirePermission(auth.InvoicesGenerate), h.generateInvoice)
	g.PUT("/:id", RequirePermission(auth.InvoicesEdit), h.updateInvoice)
	g.DELETE("/:id", RequirePermission(auth.InvoicesDelete), h.deleteInvoice)
}

// createOrder answers 201 for a new order and 200 when an Idempotency-Key
// replays an earlier one
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, created, err := h.svc.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	from, to, err := dateRange(c, "from", "to")
	if err != nil {
		h.respondError(c, err)
		return
	}
	filter := store.OrderFilter{
		Page:          pageQuery(c),
		Search:        c.Query("search"),
		Status:        c.Query("status"),
		CustomerPhone: c.Query("customer_phone"),
		From:          from,
		To:            to,
	}
	orders, total, err := h.svc.Orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, orders, filter.Page, total)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateOrderRequest
	if !bind(c, &req) {
		return
	}
	order, err := h.svc.Orders.UpdateOrder(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Orders.DeleteOrder(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}

func (h *Handler) listReturns(c *gin.Context) {
	orderID, _ := strconv.ParseInt(c.Query("order_id"), 10, 64)
	filter := store.ReturnFilter{
		Page:    pageQuery(c),
		Status:  c.Query("status"),
		OrderID: orderID,
	}
	returns, total, err := h.svc.Returns.ListReturns(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, returns, filter.Page, total)
}

func (h *Handler) getReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ret, err := h.svc.Returns.GetReturn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) createReturn(c *gin.Context) {
	var req service.CreateReturnRequest
	if !bind(c, &req) {
		return
	}
	ret, err := h.svc.Returns.CreateReturn(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ret)
}

func (h *Handler) approveReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ret, order, err := h.svc.Returns.ApproveReturn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Return approved and stock restored",
		"return":  ret,
		"order":   order,
	})
}

func (h *Handler) rejectReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.RejectReturnRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	ret, err := h.svc.Returns.RejectReturn(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ret)
}

func (h *Handler) deleteReturn(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Returns.DeleteReturn(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Return deleted"})
}

func (h *Handler) listInvoices(c *gin.Context) {
	filter := store.InvoiceFilter{
		Page:          pageQuery(c),
		Search:        c.Query("search"),
		CustomerPhone: c.Query("customer_phone"),
	}
	invoices, total, err := h.svc.Invoices.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, invoices, filter.Page, total)
}

func (h *Handler) getInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invoice, err := h.svc.Invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) generateInvoice(c *gin.Context) {
	var req service.GenerateInvoiceRequest
	if !bind(c, &req) {
		return
	}
	invoice, err := h.svc.Invoices.GenerateInvoice(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (h *Handler) updateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateInvoiceRequest
	if !bind(c, &req) {
		return
	}
	invoice, err := h.svc.Invoices.UpdateInvoice(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) deleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Invoices.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invoice deleted"})
}

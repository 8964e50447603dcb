package api

import (
	"net/http"

	"retail-core/internal/auth"
	"retail-core/internal/service"
	"retail-core/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) expenseRoutes(g *gin.RouterGroup) {
	g.GET("", RequirePermission(auth.ExpensesRead), h.listExpenses)
	g.GET("/summary", RequirePermission(auth.ExpensesRead), h.expenseSummary)
	g.GET("/:id", RequirePermission(auth.ExpensesRead), h.getExpense)
	g.POST("", RequirePermission(auth.ExpensesWrite), h.createExpense)
	g.PUT("/:id", RequirePermission(auth.ExpensesWrite), h.updateExpense)
	g.DELETE("/:id", RequirePermission(auth.ExpensesDelete), h.deleteExpense)
}

func (h *Handler) userRoutes(g *gin.RouterGroup) {
	g.Use(RequirePermission(auth.UsersManage))
	g.GET("", h.listUsers)
	g.PUT("/:id/role", h.updateUserRole)
	g.PUT("/:id/password", h.resetUserPassword)
	g.DELETE("/:id", h.deleteUser)
}

func (h *Handler) expenseFilter(c *gin.Context) (store.ExpenseFilter, error) {
	from, to, err := dateRange(c, "start_date", "end_date")
	if err != nil {
		return store.ExpenseFilter{}, err
	}
	return store.ExpenseFilter{
		Page:     pageQuery(c),
		Category: c.Query("category"),
		From:     from,
		To:       to,
	}, nil
}

func (h *Handler) listExpenses(c *gin.Context) {
	filter, err := h.expenseFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	expenses, total, err := h.svc.Expenses.ListExpenses(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPage(c, expenses, filter.Page, total)
}

func (h *Handler) expenseSummary(c *gin.Context) {
	filter, err := h.expenseFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	filter.Page = store.Page{}
	summary, err := h.svc.Expenses.Summary(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	expense, err := h.svc.Expenses.GetExpense(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (h *Handler) createExpense(c *gin.Context) {
	var req service.ExpenseRequest
	if !bind(c, &req) {
		return
	}
	expense, err := h.svc.Expenses.CreateExpense(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func (h *Handler) updateExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ExpenseRequest
	if !bind(c, &req) {
		return
	}
	expense, err := h.svc.Expenses.UpdateExpense(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (h *Handler) deleteExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Expenses.DeleteExpense(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted"})
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.svc.Users.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.svc.Users.Login(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) refresh(c *gin.Context) {
	var req service.RefreshRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.svc.Users.Refresh(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Users.Logout(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) me(c *gin.Context) {
	profile, err := h.svc.Users.Me(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Users.ChangePassword(c.Request.Context(), &req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.svc.Users.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (h *Handler) updateUserRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !bind(c, &req) {
		return
	}
	user, err := h.svc.Users.UpdateRole(c.Request.Context(), id, req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) resetUserPassword(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ResetPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.svc.Users.ResetPassword(c.Request.Context(), id, &req); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset"})
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Users.DeleteUser(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

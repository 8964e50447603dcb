package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
	"retail-core/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultExpensePageSize = 50
	uncategorized          = "Uncategorized"
)

// ExpenseService records standalone costs
type ExpenseService struct {
	repo   store.Repository
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewExpenseService creates a new expense service
func NewExpenseService(repo store.Repository, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		repo:   repo,
		events: events,
		logger: util.Named("expenses"),
		now:    time.Now,
	}
}

// ExpenseRequest holds the expense fields. Date accepts YYYY-MM-DD or
// RFC 3339 and defaults to now.
type ExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required,max=500"`
	Category    string          `json:"category" validate:"max=100"`
	Date        string          `json:"date"`
}

func (r *ExpenseRequest) normalize() {
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, validationError("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func (s *ExpenseService) resolveDate(value string) (time.Time, error) {
	if value == "" {
		return s.now(), nil
	}
	return ParseDate(value)
}

// CreateExpense appends an expense attributed to the caller
func (s *ExpenseService) CreateExpense(ctx context.Context, req *ExpenseRequest) (*models.Expense, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	date, err := s.resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		Date:        date,
		UserID:      actor.UserID,
		Username:    actor.Username,
	}
	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	util.ExpensesRecordedTotal.Inc()
	s.logger.Info("Expense recorded", zap.Int64("expense_id", expense.ID), zap.String("amount", expense.Amount.String()))

	event := &models.ExpenseRecordedEvent{
		BaseEvent: models.NewBaseEvent(uuid.New().String(), models.EventTypeExpenseRecorded),
		ExpenseID: expense.ID,
		Amount:    expense.Amount,
		Category:  expense.Category,
	}
	if err := s.events.PublishExpenseRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish ExpenseRecorded event", zap.Error(err))
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	expense, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return expense, nil
}

// ListExpenses filters by category and date window, 50 per page by default
func (s *ExpenseService) ListExpenses(ctx context.Context, filter store.ExpenseFilter) ([]models.Expense, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultExpensePageSize
	}
	return s.repo.ListExpenses(ctx, filter)
}

// UpdateExpense replaces the expense fields with the same rules as create
func (s *ExpenseService) UpdateExpense(ctx context.Context, id int64, req *ExpenseRequest) (*models.Expense, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	expense, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if req.Date != "" {
		if expense.Date, err = ParseDate(req.Date); err != nil {
			return nil, err
		}
	}
	expense.Amount = req.Amount
	expense.Description = req.Description
	expense.Category = req.Category

	if err := s.repo.UpdateExpense(ctx, expense); err != nil {
		return nil, translate(err)
	}
	return expense, nil
}

// DeleteExpense removes an expense
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return translate(err)
	}
	s.logger.Info("Expense deleted", zap.Int64("expense_id", id))
	return nil
}

// CategoryTotal is one category's share of the expenses
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// ExpenseSummary totals expenses in a window
type ExpenseSummary struct {
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	TotalCount    int             `json:"total_count"`
	ByCategory    []CategoryTotal `json:"by_category"`
}

// Summary totals the expenses matching filter, largest category first
func (s *ExpenseService) Summary(ctx context.Context, filter store.ExpenseFilter) (*ExpenseSummary, error) {
	filter.Page = store.Page{}
	expenses, _, err := s.repo.ListExpenses(ctx, filter)
	if err != nil {
		return nil, err
	}
	return summarizeExpenses(expenses), nil
}

func summarizeExpenses(expenses []models.Expense) *ExpenseSummary {
	summary := &ExpenseSummary{ByCategory: []CategoryTotal{}}
	index := make(map[string]int)
	for _, e := range expenses {
		summary.TotalExpenses = summary.TotalExpenses.Add(e.Amount)
		summary.TotalCount++

		category := e.Category
		if category == "" {
			category = uncategorized
		}
		i, ok := index[category]
		if !ok {
			i = len(summary.ByCategory)
			index[category] = i
			summary.ByCategory = append(summary.ByCategory, CategoryTotal{Category: category})
		}
		summary.ByCategory[i].Total = summary.ByCategory[i].Total.Add(e.Amount)
		summary.ByCategory[i].Count++
	}
	sort.SliceStable(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Total.GreaterThan(summary.ByCategory[j].Total)
	})
	return summary
}

package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"retail-core/internal/service"
	"retail-core/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Pagination describes one page of a listing
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// pageQuery reads page and limit, clamping them to sane bounds
func pageQuery(c *gin.Context) store.Page {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return store.Page{Page: page, Limit: limit}
}

func respondPage(c *gin.Context, data interface{}, page store.Page, total int) {
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"pagination": Pagination{
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(page.Limit))),
		},
	})
}

// dateRange reads from/to (or the given aliases). A date-only "to" covers
// the whole day.
func dateRange(c *gin.Context, fromKey, toKey string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := c.Query(fromKey); v != "" {
		t, err := service.ParseDate(v)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := c.Query(toKey); v != "" {
		t, err := service.ParseDate(v)
		if err != nil {
			return nil, nil, err
		}
		if len(v) == len("2006-01-02") {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func intQuery(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

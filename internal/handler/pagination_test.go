package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func paramsFor(t *testing.T, rawQuery string) (int, int) {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil)
	return GetPaginationParams(c)
}

func TestGetPaginationParams(t *testing.T) {
	page, limit := paramsFor(t, "page=3&limit=25")
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, limit)

	page, limit = paramsFor(t, "")
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)

	page, limit = paramsFor(t, "page=0&limit=-5")
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)

	page, limit = paramsFor(t, "page=abc&limit=xyz")
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)

	_, limit = paramsFor(t, "limit=5000")
	assert.Equal(t, maxPageSize, limit)
}

func TestNewPaginatedResponse(t *testing.T) {
	resp := NewPaginatedResponse([]string{"a", "b"}, 11, 2, 5)
	assert.Equal(t, int64(11), resp.Meta.TotalItems)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.Equal(t, 2, resp.Meta.CurrentPage)
	assert.Equal(t, 5, resp.Meta.PageSize)
}

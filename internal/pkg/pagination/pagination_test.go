package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func queryOf(t *testing.T, rawQuery string) Query {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{"defaults", "", Query{Page: 1, Size: 10}},
		{"explicit", "page=3&size=25", Query{Page: 3, Size: 25}},
		{"zero page", "page=0", Query{Page: 1, Size: 10}},
		{"negative size", "size=-5", Query{Page: 1, Size: 10}},
		{"size capped", "size=500", Query{Page: 1, Size: MaxSize}},
		{"garbage", "page=abc&size=xyz", Query{Page: 1, Size: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryOf(t, tt.query))
		})
	}
}

func TestMeta(t *testing.T) {
	meta := Meta(Query{Page: 2, Size: 10}, 35)
	assert.EqualValues(t, 35, meta.Total)
	assert.Equal(t, 2, meta.CurrentPage)
	assert.Equal(t, 4, meta.TotalPage)
	assert.True(t, meta.HasNextPage)

	last := Meta(Query{Page: 4, Size: 10}, 35)
	assert.False(t, last.HasNextPage)

	empty := Meta(Query{Page: 1, Size: 10}, 0)
	assert.Equal(t, 0, empty.TotalPage)
	assert.False(t, empty.HasNextPage)
}

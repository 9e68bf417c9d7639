// Package pagination implements page/size query parameters and the list
// response envelope shared by every collection endpoint.
package pagination

import (
	"reflect"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page int
	Size int
}

// FromContext extracts page/size from the echo context query string.
// Out-of-range values are clamped rather than rejected.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	return Params{Page: page, Size: size}
}

// Limit returns the SQL LIMIT value.
func (p Params) Limit() int { return p.Size }

// Offset returns the SQL OFFSET value.
func (p Params) Offset() int { return (p.Page - 1) * p.Size }

// Response wraps a paginated collection.
type Response struct {
	Items      interface{} `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	TotalPages int         `json:"total_pages"`
}

// NewResponse builds the envelope. A nil items slice is replaced with an
// empty one so that empty pages serialize as [] instead of null.
func NewResponse(items interface{}, total int, p Params) *Response {
	if items == nil {
		items = []interface{}{}
	} else if v := reflect.ValueOf(items); v.Kind() == reflect.Slice && v.IsNil() {
		items = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Size - 1) / p.Size
	}
	return &Response{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Size:       p.Size,
		TotalPages: totalPages,
	}
}

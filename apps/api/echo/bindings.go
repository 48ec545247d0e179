package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/educonnect/backend/core/request"
)

var sortParam = "sort"

// bindSortKey reads the feed ordering from the query string; unknown or
// missing values fall back to creation time.
func bindSortKey(ctx echo.Context) request.SortKey {
	return request.ParseSortKey(ctx.QueryParam(sortParam))
}

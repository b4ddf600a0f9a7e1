package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/search"
)

// searchRequestBody is the POST /api/search body (spec §6).
type searchRequestBody struct {
	Query   string                `json:"query"`
	Limit   int                   `json:"limit"`
	Filters *search.FilterOptions `json:"filters"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var body searchRequestBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, giserr.Wrap(giserr.BadRequest, "invalid search body", err))
	}

	results, err := s.engine.Search(c.Request().Context(), search.Request{
		Query:   body.Query,
		Limit:   body.Limit,
		Filters: body.Filters,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

// searchParseBody is the POST /api/search/parse body.
type searchParseBody struct {
	Query string `json:"query"`
}

func (s *Server) handleSearchParse(c echo.Context) error {
	var body searchParseBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, giserr.Wrap(giserr.BadRequest, "invalid search/parse body", err))
	}
	if body.Query == "" {
		return writeError(c, giserr.New(giserr.BadRequest, "query must not be empty"))
	}

	parsed := s.parser.Parse(c.Request().Context(), body.Query)
	return c.JSON(http.StatusOK, parsed)
}

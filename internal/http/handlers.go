package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"greeting-service/internal/db"
)

type greeting struct {
	Body string `json:"body"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

var (
	notFoundResponse = errorResponse{
		StatusCode: http.StatusNotFound,
		Error:      "Not Found",
		Message:    "Not Found",
	}
	internalErrorResponse = errorResponse{
		StatusCode: http.StatusInternalServerError,
		Error:      "Internal Server Error",
		Message:    "An internal server error occurred",
	}
	badRequestResponse = errorResponse{
		StatusCode: http.StatusBadRequest,
		Error:      "Bad Request",
		Message:    "Path parameter is not valid UTF-8",
	}
	unavailableResponse = errorResponse{
		StatusCode: http.StatusServiceUnavailable,
		Error:      "Service Unavailable",
		Message:    "Service temporarily unavailable",
	}
)

func (s *Server) hello(c *gin.Context) {
	c.JSON(http.StatusOK, greeting{Body: "Hello, world"})
}

func (s *Server) greet(c *gin.Context) {
	name := pathSegment(c)
	if !utf8.ValidString(name) {
		c.JSON(http.StatusBadRequest, badRequestResponse)
		return
	}
	// routing runs on the escaped path, so /%74asks lands here
	if name == tasksSegment {
		s.listTasks(c)
		return
	}
	c.JSON(http.StatusOK, greeting{Body: "Hello, " + encodeURIComponent(name) + "!"})
}

func (s *Server) listTasks(c *gin.Context) {
	rows, err := db.ListIncompleteTasks(c.Request.Context(), s.DB)
	if err != nil {
		entry := logEntry(c).WithError(err)

		var exhausted *db.PoolExhaustedError
		if errors.As(err, &exhausted) {
			entry.Warn("no database connection available")
			c.JSON(http.StatusServiceUnavailable, unavailableResponse)
			return
		}

		entry.Error("listing tasks")
		c.JSON(http.StatusInternalServerError, internalErrorResponse)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, notFoundResponse)
}

// pathSegment decodes the single segment matched by /:name from the escaped
// request path. gin's own unescaping of raw paths turns '+' into a space.
func pathSegment(c *gin.Context) string {
	seg := strings.TrimPrefix(c.Request.URL.EscapedPath(), "/")
	name, err := url.PathUnescape(seg)
	if err != nil {
		return c.Param("name")
	}
	return name
}

// encodeURIComponent escapes every byte except the unreserved characters
// A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

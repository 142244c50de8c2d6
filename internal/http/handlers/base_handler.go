// README: Base handler utilities (JSON helpers, request validation, error mapping).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"petmarket/internal/apperr"
	"petmarket/internal/types"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

var validate = validator.New()

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps the apperr taxonomy onto status codes.
func writeAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition), errors.Is(err, apperr.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrTransient):
		writeError(c, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bind decodes the JSON body into req and runs its validate tags. An empty
// body is accepted when allowEmpty is set.
func bind(c *gin.Context, req any, allowEmpty bool) bool {
	if allowEmpty && c.Request.ContentLength == 0 {
		return validateStruct(c, req)
	}
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req any) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
			}
			writeError(c, http.StatusBadRequest, "invalid fields: "+strings.Join(fields, ", "))
			return false
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pathID reads and checks an id path parameter.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !types.ValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

// queryDate parses ?date=YYYY-MM-DD in loc, defaulting to today. The result
// is local noon so a later conversion into a neighbouring zone keeps the date.
func queryDate(c *gin.Context, loc *time.Location, now time.Time) (time.Time, bool) {
	v := c.Query("date")
	if v == "" {
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 12, 0, 0, 0, loc), true
	}
	d, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d.Add(12 * time.Hour), true
}

// dayBounds returns local midnight of the date of t and the next midnight.
func dayBounds(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}

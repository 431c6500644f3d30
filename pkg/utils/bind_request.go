package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
)

// BindRequest binds path params and the optional JSON body into T, then validates it.
// Binding and validation failures both answer 400 with a message naming the bad field.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		var bindErr *echo.HTTPError
		if errors.As(err, &bindErr) {
			return v, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprint(bindErr.Message))
		}
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	v, err := Validate(v)
	if err != nil {
		return v, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return v, nil
}

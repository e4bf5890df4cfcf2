package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// requestLogging logs every HTTP request.
func requestLogging(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Msg("HTTP request")

			return err
		}
	}
}

// recoverMiddleware turns a handler panic into a 500.
func recoverMiddleware(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					logger.Error().Err(perr).Bytes("stack", debug.Stack()).Msg("Handler panic")
					err = c.JSON(http.StatusInternalServerError, ErrorResponse{
						Kind:    "internal",
						Message: "Internal Server Error",
					})
				}
			}()
			return next(c)
		}
	}
}

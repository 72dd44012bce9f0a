package util

import (
	"errors"
	"net/http"

	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Data:    data,
		Message: message,
	})
}

func Error(c *gin.Context, code int, err interface{}) {
	msg := ""
	switch e := err.(type) {
	case string:
		msg = e
	case error:
		msg = e.Error()
	default:
		msg = "Internal Server Error"
	}

	if code >= http.StatusInternalServerError {
		zap.S().Errorf("API Error: %s", msg)
	} else {
		zap.S().Debugf("API Error: %s", msg)
	}

	c.JSON(code, Response{
		Code:    -1,
		Data:    nil,
		Message: msg,
	})
}

var statusByError = []struct {
	err  error
	code int
}{
	{contest.ErrNotFound, http.StatusNotFound},
	{contest.ErrInvalidCredentials, http.StatusUnauthorized},
	{contest.ErrNotInMatch, http.StatusForbidden},
	{contest.ErrNoRound2Access, http.StatusForbidden},
	{contest.ErrRateLimited, http.StatusTooManyRequests},
	{contest.ErrMatchNotActive, http.StatusConflict},
	{contest.ErrInvalidTransition, http.StatusConflict},
	{contest.ErrHandleAlreadySet, http.StatusConflict},
	{contest.ErrNotTimedOut, http.StatusConflict},
	{contest.ErrTeamExists, http.StatusConflict},
	{contest.ErrNoHandle, http.StatusBadRequest},
	{contest.ErrExternalSourceUnavailable, http.StatusBadGateway},
	{contest.ErrBoardNotSeeded, http.StatusServiceUnavailable},
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return http.StatusInternalServerError
}

// Fail writes err with the status its kind maps to. Unexpected errors are
// reported without their details.
func Fail(c *gin.Context, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		zap.S().Errorf("internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		Error(c, code, "internal server error")
		return
	}
	Error(c, code, err)
}

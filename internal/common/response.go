package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// FailWithDetails is Fail plus a short diagnostic string under data.details.
func FailWithDetails(c *gin.Context, httpStatus int, code int, msg, details string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    gin.H{"details": details},
	})
}

package utils

import (
	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

// RespondAppError classifies err per the wire taxonomy and picks the status
// code from the kind.
func RespondAppError(c *gin.Context, err error) {
	kind := KindOf(err)
	c.JSON(StatusForKind(kind), JSONResponse{
		Status:  false,
		Message: err.Error(),
		Kind:    string(kind),
		Data:    nil,
	})
}

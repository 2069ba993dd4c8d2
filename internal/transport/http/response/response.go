package response

import "github.com/gin-gonic/gin"

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

// OK writes data as the bare JSON body of a 200 response.
func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Error: message})
}


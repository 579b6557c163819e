package utils

import "github.com/gin-gonic/gin"

// JSONSuccess wraps data in the success envelope.
func JSONSuccess(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

// JSONPage is JSONSuccess for paginated lists.
func JSONPage(c *gin.Context, code int, data interface{}, total int64, page, pageSize int) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
		"meta":    gin.H{"total": total, "page": page, "page_size": pageSize},
	})
}

// JSONError writes the error envelope used by every endpoint.
func JSONError(c *gin.Context, code int, errCode, message string, details map[string]any) {
	body := gin.H{"code": errCode, "message": message}
	if len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(code, gin.H{"error": body})
}

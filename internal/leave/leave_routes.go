package leave

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	leaves := r.Group("/leaves")
	{
		leaves.POST("", handler.Apply)
		leaves.PUT("/:id/decision", handler.Decide)
		leaves.PUT("/:id/cancel", handler.Cancel)
		leaves.GET("/employee/:employeeId", handler.GetByEmployee)
		leaves.GET("/manager/:managerId", handler.GetByManager)
		leaves.GET("/balance/:employeeId", handler.GetBalance)
	}
}

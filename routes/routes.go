package routes

import (
	"library_by_email/app"
	"library_by_email/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	bookCtl := controllers.NewBookController(s)

	// 复用的中间件
	operatorMW := app.OperatorOnly(a.Config.AdminToken)

	// ------------------------------
	// 健康检查（公开）
	// ------------------------------
	r.GET("/healthz", bookCtl.Health)
	r.GET("/health", bookCtl.Health)

	// ------------------------------
	// 目录：浏览公开，写操作仅限运维
	// ------------------------------
	r.GET("/books", bookCtl.ListBooks)

	booksAdmin := r.Group("/books", operatorMW)
	{
		booksAdmin.POST("", bookCtl.CreateBook)
		booksAdmin.POST("/seed", bookCtl.Seed)
		booksAdmin.DELETE("/:isbn", bookCtl.DeleteBook)
	}

	// ------------------------------
	// 预约记录
	// ------------------------------
	r.GET("/reservations", bookCtl.ListReservations) // ?email=&status=&page=&size=
}

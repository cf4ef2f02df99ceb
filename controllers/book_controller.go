// controllers/book_controller.go
package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"library_by_email/app"
	"library_by_email/db"

	"github.com/gin-gonic/gin"
)

type BookController struct{ *Srv }

func NewBookController(s *Srv) *BookController { return &BookController{Srv: s} }

// 健康检查：顺带 ping 一下数据库
func (bc *BookController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := bc.Repo.Ping(ctx); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// 目录（仅 active）
func (bc *BookController) ListBooks(c *gin.Context) {
	books, err := bc.Repo.ListBooks(c.Request.Context())
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

// 目录为空时写入默认书目（或 SEED_FILE）
func (bc *BookController) Seed(c *gin.Context) {
	seed, err := db.LoadSeedFile(bc.Cfg.SeedFile)
	if err != nil {
		bc.fail(c, err)
		return
	}
	added, err := bc.Repo.SeedBooks(c.Request.Context(), seed)
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"seeded": true, "added": len(added)})
}

// 管理员登记新书
func (bc *BookController) CreateBook(c *gin.Context) {
	var in struct {
		Title  string `json:"title" binding:"required"`
		Author string `json:"author"`
		ISBN   string `json:"isbn" binding:"required"`
		Copies int    `json:"copies"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Copies == 0 {
		in.Copies = 1
	}
	if strings.TrimSpace(in.Author) == "" {
		in.Author = "Desconocido"
	}
	b, err := bc.Repo.RegisterBook(c.Request.Context(), db.RegisterBookInput{
		Title: in.Title, Author: in.Author, ISBN: in.ISBN, Copies: in.Copies,
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// 下架（软删除）
func (bc *BookController) DeleteBook(c *gin.Context) {
	b, err := bc.Repo.DeleteBook(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// 某个用户的预约记录：?email=&status=&page=&size=
func (bc *BookController) ListReservations(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing email"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := bc.Repo.ListReservations(c.Request.Context(), db.ReservationsQuery{
		Email:  email,
		Status: c.Query("status"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"page":  page,
		"size":  size,
		"items": res.Items,
	})
}

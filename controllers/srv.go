// controllers/srv.go
package controllers

import (
	"log/slog"
	"net/http"

	"library_by_email/app"
	"library_by_email/config"
	"library_by_email/db"

	"github.com/gin-gonic/gin"
)

type Srv struct {
	Repo   *db.Repo
	Cfg    config.Config
	Logger *slog.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:   a.Repo,
		Cfg:    a.Config,
		Logger: a.Logger,
	}
}

// --- helpers ---

// 业务错误 -> HTTP 状态码；其余一律 500
func statusFor(err error) int {
	switch db.KindOf(err) {
	case db.KindNotFound:
		return http.StatusNotFound
	case db.KindConflict:
		return http.StatusConflict
	case db.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Srv) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, app.H{"error": "internal error"})
		return
	}
	c.JSON(code, app.H{"error": err.Error()})
}

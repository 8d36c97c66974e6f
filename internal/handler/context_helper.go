package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/middleware"
	"github.com/noah-isme/result-distribution-api/internal/models"
)

func sessionFromContext(c *gin.Context) *models.Session {
	return middleware.SessionFrom(c)
}

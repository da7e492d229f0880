package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/utils"
)

// GetUploadedImage handles GET /api/v1/uploads/:filename - serves product images kept on local disk
func GetUploadedImage(c *gin.Context) {
	filename := c.Param("filename")

	// Validate filename is not empty
	if filename == "" {
		respondErrorWith(c, http.StatusBadRequest, "INVALID_REQUEST", "Filename is required", nil)
		return
	}

	// Prevent directory traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		respondErrorWith(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename", nil)
		return
	}

	contentType, ok := utils.ImageContentType(filename)
	if !ok {
		respondErrorWith(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only .png, .jpg, .jpeg and .webp images are served", nil)
		return
	}

	filePath := filepath.Join(utils.UploadDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		respondErrorWith(c, http.StatusNotFound, "FILE_NOT_FOUND", "Image not found", nil)
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400") // 24 hours
	c.File(filePath)
}

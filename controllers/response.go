package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/services"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
)

var statusByKind = map[utils.ErrorKind]int{
	utils.KindValidation: http.StatusBadRequest,
	utils.KindNotFound:   http.StatusNotFound,
	utils.KindConflict:   http.StatusConflict,
	utils.KindAuth:       http.StatusUnauthorized,
	utils.KindUpstream:   http.StatusBadGateway,
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondErrorWith(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// respondError writes err in the error envelope. Service errors keep their
// code; anything unexpected is reported and hidden behind INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	var couponErr *services.CouponError
	if errors.As(err, &couponErr) {
		status := http.StatusBadRequest
		if couponErr.Reason == services.CouponNotFound {
			status = http.StatusNotFound
		}
		respondErrorWith(c, status, couponErr.Code(), couponErr.Message, nil)
		return
	}

	var fileErr *utils.FileUploadError
	if errors.As(err, &fileErr) {
		respondErrorWith(c, http.StatusBadRequest, fileErr.Code, fileErr.Message, nil)
		return
	}

	if appErr, ok := utils.AsAppError(err); ok {
		status, known := statusByKind[appErr.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		if appErr.Kind == utils.KindUpstream {
			logger.Warn("Upstream failure", zap.String("code", appErr.Code), zap.String("path", c.FullPath()), zap.Error(err))
		}
		respondErrorWith(c, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	logger.Report("Unhandled request error", err, zap.String("path", c.FullPath()))
	respondErrorWith(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong", nil)
}

func respondValidation(c *gin.Context, err error) {
	respondErrorWith(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request data", err.Error())
}

// idParam parses a positive numeric path parameter, writing a 400 if it is not one
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondErrorWith(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

func paginated(items interface{}, total int64, page, pageSize int) gin.H {
	return gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}
}

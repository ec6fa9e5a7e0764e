package handlers

import (
	"net/http"

	"github.com/iwtcode/grblService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// UploadProgram загружает или перезаписывает программу.
// @Summary Загрузить программу
// @Tags Programs
// @Accept json
// @Produce json
// @Param input body models.ProgramRequest true "Имя и текст программы"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /programs [post]
func (h *Handler) UploadProgram(c *gin.Context) {
	var req models.ProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Invalid request payload")
		return
	}

	if err := h.usecase.UploadProgram(req.Name, req.Content); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Program uploaded"})
}

// ListPrograms возвращает имена загруженных программ.
// @Summary Список программ
// @Tags Programs
// @Produce json
// @Success 200 {object} models.ProgramsResponse
// @Router /programs [get]
func (h *Handler) ListPrograms(c *gin.Context) {
	c.JSON(http.StatusOK, models.ProgramsResponse{Status: "ok", Programs: h.usecase.ListPrograms()})
}

// GetProgram возвращает программу по имени.
// @Summary Получить программу
// @Tags Programs
// @Produce json
// @Param name path string true "Имя программы"
// @Success 200 {object} models.ProgramResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /programs/{name} [get]
func (h *Handler) GetProgram(c *gin.Context) {
	program, err := h.usecase.GetProgram(c.Param("name"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ProgramResponse{Status: "ok", Program: program})
}

// DeleteProgram удаляет программу. Выполняющееся задание не затрагивается.
// @Summary Удалить программу
// @Tags Programs
// @Produce json
// @Param name path string true "Имя программы"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /programs/{name} [delete]
func (h *Handler) DeleteProgram(c *gin.Context) {
	if err := h.usecase.DeleteProgram(c.Param("name")); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Program deleted"})
}

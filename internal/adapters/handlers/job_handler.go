package handlers

import (
	"net/http"
	"strconv"

	"github.com/iwtcode/grblService/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// StartProgram запускает программу.
// @Summary Запустить программу
// @Tags Job
// @Accept json
// @Produce json
// @Param input body models.StartRequest true "Имя программы"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse "Программа не найдена"
// @Failure 409 {object} models.ErrorResponse "Задание уже выполняется"
// @Router /job/start [post]
func (h *Handler) StartProgram(c *gin.Context) {
	var req models.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Missing or invalid program name")
		return
	}

	h.logger.Info("Starting program", "name", req.Name)
	if err := h.usecase.StartProgram(req.Name); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Program started"})
}

// StopProgram останавливает задание.
// @Summary Остановить задание
// @Tags Job
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Нет активного задания"
// @Router /job/stop [post]
func (h *Handler) StopProgram(c *gin.Context) {
	h.simple(c, h.usecase.StopProgram, "Program stopped")
}

// PauseProgram приостанавливает задание.
// @Summary Пауза
// @Tags Job
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Нет выполняющегося задания"
// @Router /job/pause [post]
func (h *Handler) PauseProgram(c *gin.Context) {
	h.simple(c, h.usecase.PauseProgram, "Program paused")
}

// ResumeProgram продолжает задание.
// @Summary Продолжить
// @Tags Job
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Задание не на паузе"
// @Router /job/resume [post]
func (h *Handler) ResumeProgram(c *gin.Context) {
	h.simple(c, h.usecase.ResumeProgram, "Program resumed")
}

func (h *Handler) simple(c *gin.Context, op func() error, message string) {
	if err := op(); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: message})
}

// AdjustFeedRate устанавливает коррекцию подачи.
// @Summary Коррекция подачи
// @Tags Job
// @Accept json
// @Produce json
// @Param input body models.FeedRequest true "Процент 10..200"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Значение вне диапазона"
// @Router /job/feed [post]
func (h *Handler) AdjustFeedRate(c *gin.Context) {
	var req models.FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Missing or invalid percentage")
		return
	}
	if err := h.usecase.AdjustFeedRate(*req.Percentage); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Feed rate changed"})
}

// TerminalCommand отправляет строку в контроллер. Результат приходит событием terminal_result.
// @Summary Терминал
// @Tags Job
// @Accept json
// @Produce json
// @Param input body models.TerminalRequest true "Строка G-code"
// @Success 200 {object} models.MessageResponse
// @Failure 409 {object} models.ErrorResponse "Выполняется задание"
// @Router /terminal [post]
func (h *Handler) TerminalCommand(c *gin.Context) {
	var req models.TerminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err, "Missing gcode")
		return
	}
	if err := h.usecase.TerminalCommand(req.GCode); err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Command queued"})
}

// GetStatus возвращает состояние контроллера.
// @Summary Статус
// @Tags Status
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok", Controller: h.usecase.GetStatus()})
}

// ClearErrors очищает историю ошибок контроллера.
// @Summary Очистить ошибки
// @Tags Status
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Router /status/errors [delete]
func (h *Handler) ClearErrors(c *gin.Context) {
	h.usecase.ClearErrors()
	c.JSON(http.StatusOK, models.MessageResponse{Status: "ok", Message: "Errors cleared"})
}

// RecentJobs возвращает историю запусков.
// @Summary История запусков
// @Tags Status
// @Produce json
// @Param limit query int false "Количество записей"
// @Success 200 {object} models.JobsResponse
// @Router /jobs [get]
func (h *Handler) RecentJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	jobs, err := h.usecase.RecentJobs(limit)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.JobsResponse{Status: "ok", Jobs: jobs})
}

package models

import (
	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/models"
)

// ProgramRequest - загрузка программы через HTTP.
type ProgramRequest struct {
	Name    string `json:"name" binding:"required" example:"sq"`
	Content string `json:"content" binding:"required" example:"G21\nG90\nG0 X10 Y10\n"`
}

// StartRequest - запуск программы по имени.
type StartRequest struct {
	Name string `json:"name" binding:"required" example:"sq"`
}

// FeedRequest - коррекция подачи в процентах.
type FeedRequest struct {
	Percentage *float64 `json:"percentage" binding:"required" example:"120"`
}

// TerminalRequest - одна строка G-code или real-time символ.
type TerminalRequest struct {
	GCode string `json:"gcode" binding:"required" example:"$H"`
}

// ErrorResponse представляет стандартный ответ с ошибкой.
type ErrorResponse struct {
	Status string `json:"status" example:"error"`
	Error  struct {
		Code    int    `json:"code" example:"404"`
		Message string `json:"message" example:"not_found: program 'sq': program not found"`
	} `json:"error"`
}

// MessageResponse представляет стандартный успешный ответ с сообщением.
type MessageResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Program started"`
}

// StatusResponse - состояние контроллера и задания.
type StatusResponse struct {
	Status     string        `json:"status" example:"ok"`
	Controller models.Status `json:"controller"`
}

// ProgramsResponse - список имен программ.
type ProgramsResponse struct {
	Status   string   `json:"status" example:"ok"`
	Programs []string `json:"programs"`
}

// ProgramResponse - программа с исходным текстом.
type ProgramResponse struct {
	Status  string            `json:"status" example:"ok"`
	Program *entities.Program `json:"program"`
}

// JobsResponse - история запусков.
type JobsResponse struct {
	Status string               `json:"status" example:"ok"`
	Jobs   []entities.JobRecord `json:"jobs"`
}

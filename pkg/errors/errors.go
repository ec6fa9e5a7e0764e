package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	InternalServerError = "internal server error"
	BadRequest          = "bad request"
	NotFound            = "not_found"
	Conflict            = "conflict"

	InvalidDataCode         = 400
	NotFoundErrorCode       = 404
	ConflictErrorCode       = 409
	InternalServerErrorCode = 500
	LinkErrorCode           = 503
)

// Kind - класс ошибки, определяющий способ ее доставки клиенту.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation - отсутствующие поля, значения вне диапазона.
	KindValidation
	// KindConflict - операция недопустима в текущем состоянии задания.
	KindConflict
	// KindNotFound - неизвестная программа или команда.
	KindNotFound
	// KindLink - разрыв последовательного канала или ошибка контроллера.
	KindLink
	// KindProtocol - некорректный JSON.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindLink:
		return "link"
	case KindProtocol:
		return "protocol"
	default:
		return "internal"
	}
}

var (
	ErrMissingFields  = errors.New("missing required fields")
	ErrInvalidRange   = errors.New("value out of range")
	ErrInvalidCommand = errors.New("invalid command")

	ErrAlreadyRunning  = errors.New("a program is already running")
	ErrNoActiveProgram = errors.New("no active program")
	ErrBusy            = errors.New("controller is busy with an active program")

	ErrProgramNotFound = errors.New("program not found")
	ErrUnknownCommand  = errors.New("unknown command")

	ErrLinkDown       = errors.New("serial link down")
	ErrControllerFail = errors.New("controller error")

	ErrMalformedRequest = errors.New("malformed request")
)

var kinds = map[error]Kind{
	ErrMissingFields:    KindValidation,
	ErrInvalidRange:     KindValidation,
	ErrInvalidCommand:   KindValidation,
	ErrAlreadyRunning:   KindConflict,
	ErrNoActiveProgram:  KindConflict,
	ErrBusy:             KindConflict,
	ErrProgramNotFound:  KindNotFound,
	ErrUnknownCommand:   KindNotFound,
	ErrLinkDown:         KindLink,
	ErrControllerFail:   KindLink,
	ErrMalformedRequest: KindProtocol,
}

// KindOf классифицирует ошибку, в том числе обернутую через %w.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// HTTPStatus возвращает HTTP код для класса ошибки.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindProtocol:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindLink:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError представляет собой стандартизированную структуру ошибки для API.
type AppError struct {
	Code         int    `json:"code"`    // HTTP статус код
	Message      string `json:"message"` // Сообщение для клиента
	Err          error  `json:"-"`       // Внутренняя ошибка, не для клиента
	IsUserFacing bool   `json:"-"`       // Флаг, указывающий, можно ли показывать `Err`
}

func (a *AppError) Error() string {
	if a == nil {
		return ""
	}
	if a.Err != nil {
		return fmt.Sprintf("%s (code: %d): %v", a.Message, a.Code, a.Err)
	}
	return fmt.Sprintf("%s (code: %d)", a.Message, a.Code)
}

func (a *AppError) Unwrap() error {
	return a.Err
}

// NewAppError создает новый экземпляр AppError.
func NewAppError(httpCode int, message string, err error, isUserFacing bool) *AppError {
	return &AppError{
		Code:         httpCode,
		Message:      message,
		Err:          err,
		IsUserFacing: isUserFacing,
	}
}

// FromError строит AppError по классу ошибки. Внутренние ошибки не раскрываются клиенту.
func FromError(err error) *AppError {
	code := HTTPStatus(err)
	switch KindOf(err) {
	case KindInternal:
		return NewAppError(code, InternalServerError, err, false)
	case KindNotFound:
		return NewAppError(code, NotFound, err, true)
	case KindConflict:
		return NewAppError(code, Conflict, err, true)
	default:
		return NewAppError(code, BadRequest, err, true)
	}
}

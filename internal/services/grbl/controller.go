package grbl

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/metrics"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/models"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
)

// JobState - состояние автомата задания.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobPaused  JobState = "paused"
)

func (s JobState) gauge() float64 {
	switch s {
	case JobRunning:
		return 1
	case JobPaused:
		return 2
	default:
		return 0
	}
}

const maxErrorHistory = 50

// resyncMode - ожидание, пока контроллер не будет готов принимать строки.
// Пока ожидание не снято, строки в очереди не отправляются.
type resyncMode int

const (
	resyncNone resyncMode = iota
	// resyncAwaitController выставляется при подключении: плата может перезагрузиться
	// при открытии порта, баннер придет с задержкой. Снимается баннером или отчетом о статусе.
	resyncAwaitController
	// resyncAwaitBanner выставляется после soft reset при остановке. Снимается только баннером.
	resyncAwaitBanner
)

// Job - выполнение одной программы.
type Job struct {
	ID        string
	Program   *entities.Program
	Sent      int
	Acked     int
	StartedAt time.Time
}

// Controller - автомат состояний задания и владелец Streamer.
// Состояние задания и учет буфера защищены одним мьютексом mu.
// Запись в канал выполняется только под mu; события публикуются внутри критической секции,
// поэтому все подписчики видят их в одном порядке.
type Controller struct {
	mu        sync.Mutex
	state     JobState
	job       *Job
	streamer  *Streamer
	feed      int
	resync    resyncMode
	errors    []models.ControllerError
	link      interfaces.SerialLink
	store     interfaces.ProgramStore
	publisher interfaces.EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics

	machine atomic.Pointer[entities.MachineState]
}

var (
	_ interfaces.JobController = (*Controller)(nil)
	_ interfaces.LinkHandler   = (*Controller)(nil)
)

// NewController создает контроллер и регистрирует его обработчиком строк канала.
func NewController(
	link interfaces.SerialLink,
	store interfaces.ProgramStore,
	publisher interfaces.EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
	rxSize int,
) *Controller {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	c := &Controller{
		state:     JobIdle,
		streamer:  NewStreamer(rxSize, m),
		feed:      100,
		errors:    []models.ControllerError{},
		link:      link,
		store:     store,
		publisher: publisher,
		logger:    logger.WithPrefix("GRBL"),
		metrics:   m,
	}
	c.machine.Store(entities.NewMachineState())
	link.SetHandler(c)
	return c
}

// StartProgram запускает программу. Допустимо только из состояния idle.
func (c *Controller) StartProgram(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", apperrors.ErrMissingFields)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != JobIdle {
		return fmt.Errorf("program '%s' is %s: %w", c.job.Program.Name, c.state, apperrors.ErrAlreadyRunning)
	}
	program, err := c.store.Get(name)
	if err != nil {
		return err
	}
	if !c.link.Connected() {
		return apperrors.ErrLinkDown
	}

	c.job = &Job{
		ID:        uuid.New().String(),
		Program:   program,
		StartedAt: time.Now(),
	}
	c.setStateLocked(JobRunning)
	c.streamer.Enqueue(c.job.ID, program.Lines)

	c.logger.Info("Program started", "name", name, "job_id", c.job.ID, "lines", len(program.Lines))
	c.publisher.Emit(entities.EventProgramStarted, c.jobDataLocked(map[string]interface{}{
		"lines": len(program.Lines),
	}))

	c.pumpLocked()
	return nil
}

// StopProgram посылает feed hold и soft reset, отбрасывает неотправленные строки и возвращает автомат в idle.
// Soft reset очищает буфер контроллера и снимает hold; до его баннера новые строки не отправляются.
func (c *Controller) StopProgram() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == JobIdle {
		return apperrors.ErrNoActiveProgram
	}
	if err := c.link.SendRealtime(RTFeedHold); err != nil {
		c.logger.Warn("Failed to send feed hold on stop", "error", err)
	}

	data := c.jobDataLocked(map[string]interface{}{
		"sent":  c.job.Sent,
		"acked": c.job.Acked,
	})
	dropped := c.finishLocked()
	if err := c.link.SendRealtime(RTSoftReset); err != nil {
		c.logger.Warn("Failed to send soft reset on stop", "error", err)
	}
	// Строки в буфере контроллера сброшены вместе с ним.
	c.streamer.Reset()
	c.resync = resyncAwaitBanner
	c.logger.Info("Program stopped", "name", data["name"], "discarded", dropped)
	c.publisher.Emit(entities.EventProgramStopped, data)
	return nil
}

// PauseProgram приостанавливает выполнение. Новые строки не отправляются, подтверждения продолжают приниматься.
func (c *Controller) PauseProgram() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != JobRunning {
		return apperrors.ErrNoActiveProgram
	}
	if err := c.link.SendRealtime(RTFeedHold); err != nil {
		return fmt.Errorf("feed hold: %w", err)
	}
	c.setStateLocked(JobPaused)
	c.logger.Info("Program paused", "name", c.job.Program.Name)
	c.publisher.Emit(entities.EventProgramPaused, c.jobDataLocked(nil))
	return nil
}

// ResumeProgram продолжает приостановленное задание.
func (c *Controller) ResumeProgram() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != JobPaused {
		return apperrors.ErrNoActiveProgram
	}
	if err := c.link.SendRealtime(RTCycleStart); err != nil {
		return fmt.Errorf("cycle start: %w", err)
	}
	c.setStateLocked(JobRunning)
	c.logger.Info("Program resumed", "name", c.job.Program.Name)
	c.publisher.Emit(entities.EventProgramResumed, c.jobDataLocked(nil))

	c.pumpLocked()
	return nil
}

// AdjustFeedRate устанавливает коррекцию подачи в процентах. Допустимо в любом состоянии.
func (c *Controller) AdjustFeedRate(percentage int) error {
	if percentage < MinFeedPercent || percentage > MaxFeedPercent {
		return fmt.Errorf("feed rate %d must be within [%d, %d]: %w",
			percentage, MinFeedPercent, MaxFeedPercent, apperrors.ErrInvalidRange)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range FeedOverrideBytes(percentage) {
		if err := c.link.SendRealtime(b); err != nil {
			return fmt.Errorf("feed override: %w", err)
		}
	}
	c.feed = percentage
	c.logger.Info("Feed rate changed", "percentage", percentage)
	c.publisher.Emit(entities.EventFeedRateChanged, map[string]interface{}{"percentage": percentage})
	return nil
}

// TerminalCommand отправляет одну строку через тот же контроль потока, что и программы.
// Real-time символы (!, ~, ?, Ctrl-X) передаются сразу.
func (c *Controller) TerminalCommand(gcode string) error {
	if b, ok := realtimeCommand(gcode); ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.link.SendRealtime(b)
	}

	line := strings.TrimSpace(gcode)
	if line == "" {
		return fmt.Errorf("gcode is required: %w", apperrors.ErrMissingFields)
	}
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("terminal accepts a single line: %w", apperrors.ErrInvalidCommand)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != JobIdle {
		return apperrors.ErrBusy
	}
	if len(line)+1 > c.streamer.RxSize() {
		return fmt.Errorf("%s: %w", ErrLineTooLong, apperrors.ErrInvalidCommand)
	}
	if !c.link.Connected() {
		return apperrors.ErrLinkDown
	}

	c.streamer.Enqueue(TerminalJobID, []string{line})
	c.logger.Debug("Terminal command queued", "gcode", line)
	c.pumpLocked()
	return nil
}

func realtimeCommand(gcode string) (byte, bool) {
	switch gcode {
	case "!", "~", "?", "\x18":
		return gcode[0], true
	}
	trimmed := strings.TrimSpace(gcode)
	if len(trimmed) == 1 && strings.ContainsAny(trimmed, "!~?") {
		return trimmed[0], true
	}
	return 0, false
}

// ClearErrors очищает историю ошибок контроллера.
func (c *Controller) ClearErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = []models.ControllerError{}
}

// MachineState возвращает последний снимок состояния станка без блокировки.
func (c *Controller) MachineState() *entities.MachineState {
	return c.machine.Load()
}

// Status собирает ответ get_status.
func (c *Controller) Status() models.Status {
	ms := c.machine.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	status := models.Status{
		Connected:    c.link.Connected(),
		Position:     models.Position{X: ms.MPos.X, Y: ms.MPos.Y, Z: ms.MPos.Z},
		State:        ms.StateMap(),
		MachineState: ms.State,
		Idle:         c.state == JobIdle && !ms.InMotion(),
		JobState:     string(c.state),
		FeedOverride: c.feed,
		Errors:       append([]models.ControllerError{}, c.errors...),
	}
	if c.job != nil {
		name := c.job.Program.Name
		status.CurrentProgram = &name
		status.Progress = &models.Progress{
			Sent:  c.job.Sent,
			Acked: c.job.Acked,
			Total: len(c.job.Program.Lines),
		}
	}
	return status
}

// HandleLine обрабатывает строку от контроллера. Тип определяется только по форме строки.
func (c *Controller) HandleLine(line string) {
	switch kind := Classify(line); kind {
	case LineOK:
		c.handleAck()
	case LineError:
		c.handleError(line)
	case LineAlarm:
		c.handleAlarm(line)
	case LineStatus:
		c.handleStatus(line)
	case LineProbe:
		c.handleProbe(line)
	case LineWelcome:
		c.handleReset(line)
	default:
		c.logger.Debug("Controller message", "kind", kind.String(), "line", line)
	}
}

// HandleConnect вызывается каналом после (пере)подключения.
func (c *Controller) HandleConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streamer.Reset()
	c.resync = resyncAwaitController
	c.logger.Info("Serial link connected")
	c.publisher.Emit(entities.EventLinkState, map[string]interface{}{"connected": true})
}

// HandleDisconnect прерывает активное задание: связь потеряна, повторов нет.
func (c *Controller) HandleDisconnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reason := apperrors.ErrLinkDown.Error()
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}
	c.logger.Warn("Serial link disconnected", "error", err)
	c.abortLocked(reason, nil)
	c.streamer.Reset()
	c.machine.Store(entities.NewMachineState())
	c.publisher.Emit(entities.EventLinkState, map[string]interface{}{"connected": false})
}

func (c *Controller) handleAck() {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.streamer.Ack()
	if !ok {
		c.logger.Warn("Unexpected ok without outstanding lines")
		return
	}

	switch {
	case entry.JobID == TerminalJobID:
		c.publisher.Emit(entities.EventTerminalResult, map[string]interface{}{
			"gcode": entry.Line,
			"ok":    true,
		})
	case c.job != nil && entry.JobID == c.job.ID:
		c.job.Acked++
	default:
		c.logger.Debug("Late acknowledgement for finished job", "job_id", entry.JobID)
	}

	c.pumpLocked()
}

func (c *Controller) handleError(line string) {
	code, message := ParseCode(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.streamer.Ack()
	c.recordErrorLocked(models.ControllerError{
		Code:    code,
		Kind:    "error",
		Message: message,
		Line:    entry.Line,
	})
	c.logger.Warn("Controller error", "code", code, "message", message, "line", entry.Line)

	switch {
	case !ok:
	case entry.JobID == TerminalJobID:
		c.publisher.Emit(entities.EventTerminalResult, map[string]interface{}{
			"gcode": entry.Line,
			"ok":    false,
			"error": fmt.Sprintf("error:%d %s", code, message),
		})
	case c.job != nil && entry.JobID == c.job.ID:
		c.job.Acked++
		c.abortLocked(fmt.Sprintf("error:%d %s", code, message), map[string]interface{}{
			"code": code,
			"line": entry.Line,
		})
	}

	c.pumpLocked()
}

func (c *Controller) handleAlarm(line string) {
	code, message := ParseCode(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.recordErrorLocked(models.ControllerError{Code: code, Kind: "alarm", Message: message})
	c.logger.Error("Controller alarm", "code", code, "message", message)
	c.abortLocked(fmt.Sprintf("ALARM:%d %s", code, message), map[string]interface{}{"code": code})
}

func (c *Controller) handleStatus(line string) {
	next, err := ParseStatus(line, c.machine.Load())
	if err != nil {
		c.logger.Warn("Dropping malformed status report", "line", line, "error", err)
		return
	}
	c.machine.Store(next)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resync == resyncAwaitController {
		c.logger.Info("Controller ready", "state", next.State)
		c.resync = resyncNone
	}
	if next.HasBuffer {
		c.streamer.SetCapacity(next.BufferBytes)
	}
	c.pumpLocked()
	c.publisher.Emit(entities.EventStatusUpdate, map[string]interface{}{
		"raw_message":   line,
		"state":         next.StateMap(),
		"machine_state": next.State,
	})
}

func (c *Controller) handleProbe(line string) {
	pos, success, err := ParseProbe(line)
	if err != nil {
		c.logger.Warn("Dropping malformed probe report", "line", line, "error", err)
		return
	}
	next := *c.machine.Load()
	next.Probe = &pos
	c.machine.Store(&next)
	c.logger.Info("Probe result", "x", pos.X, "y", pos.Y, "z", pos.Z, "success", success)
}

func (c *Controller) handleReset(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resync != resyncNone {
		// Ожидаемый баннер: после подключения или после остановки.
		// Буфер контроллера пуст, задание, запущенное в это окно, продолжается.
		c.logger.Info("Controller ready", "banner", line)
		c.resync = resyncNone
		c.streamer.SetCapacity(c.streamer.RxSize())
		c.pumpLocked()
		return
	}

	c.logger.Warn("Controller reset detected", "banner", line)
	c.abortLocked("controller reset", nil)
	c.streamer.Reset()
}

// pumpLocked отправляет строки, пока позволяет буфер, и проверяет завершение задания.
func (c *Controller) pumpLocked() {
	if c.state == JobPaused || c.resync != resyncNone {
		return
	}

	sent, err := c.streamer.Fill(c.link.Send)
	if c.job != nil {
		for _, e := range sent {
			if e.JobID == c.job.ID {
				c.job.Sent++
			}
		}
	}
	if err != nil {
		c.failPumpLocked(err)
		return
	}

	if c.state == JobRunning &&
		c.streamer.Pending(c.job.ID) == 0 &&
		c.job.Acked == len(c.job.Program.Lines) {
		data := c.jobDataLocked(map[string]interface{}{"lines": c.job.Acked})
		c.finishLocked()
		c.logger.Info("Program completed", "name", data["name"], "job_id", data["job_id"])
		c.publisher.Emit(entities.EventProgramCompleted, data)
	}
}

func (c *Controller) failPumpLocked(err error) {
	c.logger.Error("Streaming failed", "error", err)
	if c.job == nil {
		// Строка терминала не может быть отправлена.
		if errors.Is(err, ErrLineTooLong) {
			c.streamer.Discard(TerminalJobID)
		}
		return
	}
	if errors.Is(err, ErrLineTooLong) {
		c.abortLocked(ErrLineTooLong.Error(), nil)
		return
	}
	c.abortLocked(fmt.Sprintf("%s: %v", apperrors.ErrLinkDown, err), nil)
}

// abortLocked завершает активное задание с program_error. Без активного задания ничего не делает.
func (c *Controller) abortLocked(reason string, extra map[string]interface{}) {
	if c.job == nil {
		return
	}
	data := c.jobDataLocked(extra)
	data["error"] = reason
	c.finishLocked()
	c.logger.Error("Program failed", "name", data["name"], "job_id", data["job_id"], "error", reason)
	c.publisher.Emit(entities.EventProgramError, data)
}

// finishLocked переводит автомат в idle и отбрасывает неотправленные строки задания.
func (c *Controller) finishLocked() int {
	dropped := c.streamer.Discard(c.job.ID)
	c.job = nil
	c.setStateLocked(JobIdle)
	return dropped
}

func (c *Controller) jobDataLocked(extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"name":   c.job.Program.Name,
		"job_id": c.job.ID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func (c *Controller) setStateLocked(state JobState) {
	c.state = state
	c.metrics.JobState.Set(state.gauge())
}

func (c *Controller) recordErrorLocked(e models.ControllerError) {
	e.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	c.errors = append(c.errors, e)
	if len(c.errors) > maxErrorHistory {
		c.errors = c.errors[len(c.errors)-maxErrorHistory:]
	}
	c.metrics.ControllerErrors.Inc()
}

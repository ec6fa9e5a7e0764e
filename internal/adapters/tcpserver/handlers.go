package tcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/iwtcode/grblService/models"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
)

type handlerFunc func(req *models.Request) (map[string]interface{}, error)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		models.CmdSendProgram:    s.sendProgram,
		models.CmdStartProgram:   s.startProgram,
		models.CmdStopProgram:    s.stopProgram,
		models.CmdPauseProgram:   s.pauseProgram,
		models.CmdResumeProgram:  s.resumeProgram,
		models.CmdAdjustFeedRate: s.adjustFeedRate,
		models.CmdGetStatus:      s.getStatus,
		models.CmdTerminal:       s.terminalCommand,
		models.CmdListPrograms:   s.listPrograms,
		models.CmdGetProgram:     s.getProgram,
		models.CmdDeleteProgram:  s.deleteProgram,
		models.CmdClearErrors:    s.clearErrors,
	}
}

// dispatch разбирает запрос и возвращает ответ. Ошибки никогда не закрывают соединение.
func (s *Server) dispatch(clientID string, line []byte) map[string]interface{} {
	var req models.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("Malformed request", "client_id", clientID, "error", err)
		return errorReply(fmt.Errorf("%w: %v", apperrors.ErrMalformedRequest, err))
	}
	if req.Command == "" {
		return errorReply(fmt.Errorf("%w: command", apperrors.ErrMissingFields))
	}

	handler, ok := s.handlers[req.Command]
	if !ok {
		s.logger.Warn("Unknown command", "client_id", clientID, "command", req.Command)
		return errorReply(fmt.Errorf("%w: %s", apperrors.ErrUnknownCommand, req.Command))
	}

	payload, err := handler(&req)
	if err != nil {
		s.logger.Info("Command rejected", "client_id", clientID, "command", req.Command,
			"kind", apperrors.KindOf(err).String(), "error", err)
		return errorReply(err)
	}
	s.logger.Debug("Command handled", "client_id", clientID, "command", req.Command)

	reply := map[string]interface{}{"success": true}
	for k, v := range payload {
		reply[k] = v
	}
	return reply
}

func errorReply(err error) map[string]interface{} {
	return map[string]interface{}{"error": err.Error()}
}

func requireFields(fields map[string]bool) error {
	var missing []string
	for _, name := range []string{"name", "content", "gcode", "percentage"} {
		if present, checked := fields[name]; checked && !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", apperrors.ErrMissingFields, missing)
	}
	return nil
}

func (s *Server) sendProgram(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"name": req.Name != "", "content": req.Content != ""}); err != nil {
		return nil, err
	}
	if err := s.usecase.UploadProgram(req.Name, req.Content); err != nil {
		return nil, err
	}
	return map[string]interface{}{"name": req.Name}, nil
}

func (s *Server) startProgram(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"name": req.Name != ""}); err != nil {
		return nil, err
	}
	if err := s.usecase.StartProgram(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{"name": req.Name}, nil
}

func (s *Server) stopProgram(*models.Request) (map[string]interface{}, error) {
	return nil, s.usecase.StopProgram()
}

func (s *Server) pauseProgram(*models.Request) (map[string]interface{}, error) {
	return nil, s.usecase.PauseProgram()
}

func (s *Server) resumeProgram(*models.Request) (map[string]interface{}, error) {
	return nil, s.usecase.ResumeProgram()
}

func (s *Server) adjustFeedRate(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"percentage": req.Percentage != nil}); err != nil {
		return nil, err
	}
	if err := s.usecase.AdjustFeedRate(*req.Percentage); err != nil {
		return nil, err
	}
	return map[string]interface{}{"percentage": int(*req.Percentage)}, nil
}

func (s *Server) getStatus(*models.Request) (map[string]interface{}, error) {
	return map[string]interface{}{"status": s.usecase.GetStatus()}, nil
}

func (s *Server) terminalCommand(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"gcode": req.GCode != ""}); err != nil {
		return nil, err
	}
	if err := s.usecase.TerminalCommand(req.GCode); err != nil {
		return nil, err
	}
	return map[string]interface{}{"gcode": req.GCode}, nil
}

func (s *Server) listPrograms(*models.Request) (map[string]interface{}, error) {
	return map[string]interface{}{"programs": s.usecase.ListPrograms()}, nil
}

func (s *Server) getProgram(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"name": req.Name != ""}); err != nil {
		return nil, err
	}
	program, err := s.usecase.GetProgram(req.Name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"name":    program.Name,
		"content": program.Content,
		"lines":   len(program.Lines),
	}, nil
}

func (s *Server) deleteProgram(req *models.Request) (map[string]interface{}, error) {
	if err := requireFields(map[string]bool{"name": req.Name != ""}); err != nil {
		return nil, err
	}
	if err := s.usecase.DeleteProgram(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{"name": req.Name}, nil
}

func (s *Server) clearErrors(*models.Request) (map[string]interface{}, error) {
	s.usecase.ClearErrors()
	return nil, nil
}

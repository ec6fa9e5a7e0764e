package grbl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
)

// LineKind - тип строки, полученной от контроллера.
// Канал не содержит идентификаторов запросов, поэтому тип определяется только по форме строки.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineOK
	LineError
	LineAlarm
	LineStatus
	LineProbe
	LineFeedback
	LineWelcome
)

func (k LineKind) String() string {
	switch k {
	case LineOK:
		return "ok"
	case LineError:
		return "error"
	case LineAlarm:
		return "alarm"
	case LineStatus:
		return "status"
	case LineProbe:
		return "probe"
	case LineFeedback:
		return "feedback"
	case LineWelcome:
		return "welcome"
	default:
		return "unknown"
	}
}

// Classify определяет тип строки.
func Classify(line string) LineKind {
	switch {
	case line == "ok":
		return LineOK
	case strings.HasPrefix(line, "error:"):
		return LineError
	case strings.HasPrefix(line, "ALARM:"):
		return LineAlarm
	case strings.HasPrefix(line, "<"):
		return LineStatus
	case strings.HasPrefix(line, "[PRB:"):
		return LineProbe
	case strings.HasPrefix(line, "["):
		return LineFeedback
	case strings.HasPrefix(line, "Grbl "):
		return LineWelcome
	default:
		return LineUnknown
	}
}

// ParseStatus разбирает отчет вида <State|MPos:x,y,z|Bf:blocks,bytes|Fs:feed,speed|Ov:f,r,s>.
// Поля, отсутствующие в отчете, сохраняют значения из prev.
func ParseStatus(line string, prev *entities.MachineState) (*entities.MachineState, error) {
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") || len(line) < 3 {
		return nil, fmt.Errorf("not a status report: %q", line)
	}

	next := entities.NewMachineState()
	if prev != nil {
		copied := *prev
		next = &copied
	}

	parts := strings.Split(line[1:len(line)-1], "|")
	state := parts[0]
	if idx := strings.IndexByte(state, ':'); idx >= 0 {
		state = state[:idx] // Hold:0, Door:1
	}
	if state == "" {
		return nil, fmt.Errorf("status report without state: %q", line)
	}
	next.State = state

	var mpos, wpos *entities.Vec3
	for _, field := range parts[1:] {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("malformed field %q in %q", field, line)
		}

		switch key {
		case "MPos", "WPos", "WCO", "Bf", "Fs", "FS", "F", "Ov":
		default:
			continue // Ln, Pn, A и прочие поля не используются
		}

		nums, err := parseFloats(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}

		switch key {
		case "MPos", "WPos", "WCO":
			if len(nums) < 3 {
				return nil, fmt.Errorf("field %s: expected 3 axes, got %d", key, len(nums))
			}
			vec := &entities.Vec3{X: nums[0], Y: nums[1], Z: nums[2]}
			switch key {
			case "MPos":
				mpos = vec
			case "WPos":
				wpos = vec
			default:
				next.WCO = vec
			}
		case "Bf":
			if len(nums) != 2 {
				return nil, fmt.Errorf("field Bf: expected 2 values, got %d", len(nums))
			}
			next.BufferBlocks = int(nums[0])
			next.BufferBytes = int(nums[1])
			next.HasBuffer = true
		case "Fs", "FS":
			if len(nums) != 2 {
				return nil, fmt.Errorf("field %s: expected 2 values, got %d", key, len(nums))
			}
			next.Feed, next.Speed = nums[0], nums[1]
		case "F":
			next.Feed = nums[0]
		case "Ov":
			if len(nums) != 3 {
				return nil, fmt.Errorf("field Ov: expected 3 values, got %d", len(nums))
			}
			next.Overrides = entities.Overrides{Feed: nums[0], Rapid: nums[1], Spindle: nums[2]}
		}
	}

	switch {
	case mpos != nil:
		next.MPos = *mpos
		if next.WCO != nil {
			next.WPos = &entities.Vec3{X: mpos.X - next.WCO.X, Y: mpos.Y - next.WCO.Y, Z: mpos.Z - next.WCO.Z}
		} else {
			next.WPos = nil
		}
	case wpos != nil:
		next.WPos = wpos
		if next.WCO != nil {
			next.MPos = entities.Vec3{X: wpos.X + next.WCO.X, Y: wpos.Y + next.WCO.Y, Z: wpos.Z + next.WCO.Z}
		}
	}

	next.Raw = line
	next.UpdatedAt = time.Now()
	return next, nil
}

// ParseProbe разбирает результат зондирования [PRB:x,y,z:1].
func ParseProbe(line string) (entities.Vec3, bool, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(line, "[PRB:"), "]")
	coords, flag, _ := strings.Cut(body, ":")
	nums, err := parseFloats(coords)
	if err != nil || len(nums) < 3 {
		return entities.Vec3{}, false, fmt.Errorf("malformed probe report: %q", line)
	}
	return entities.Vec3{X: nums[0], Y: nums[1], Z: nums[2]}, flag == "1", nil
}

func parseFloats(value string) ([]float64, error) {
	raw := strings.Split(value, ",")
	nums := make([]float64, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

package entities

import "time"

// Состояния контроллера, которые GRBL сообщает первым полем отчета о статусе.
const (
	MachineIdle    = "Idle"
	MachineRun     = "Run"
	MachineHold    = "Hold"
	MachineJog     = "Jog"
	MachineAlarm   = "Alarm"
	MachineDoor    = "Door"
	MachineCheck   = "Check"
	MachineHome    = "Home"
	MachineSleep   = "Sleep"
	MachineUnknown = "Unknown"
)

// Vec3 - координаты по осям X, Y, Z.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Overrides - проценты коррекции подачи, ускоренных перемещений и шпинделя.
type Overrides struct {
	Feed    float64 `json:"feed"`
	Rapid   float64 `json:"rapid"`
	Spindle float64 `json:"spindle"`
}

// MachineState - последнее известное состояние станка по отчетам о статусе.
type MachineState struct {
	State        string    `json:"state"`
	MPos         Vec3      `json:"mpos"`
	WPos         *Vec3     `json:"wpos,omitempty"`
	WCO          *Vec3     `json:"wco,omitempty"`
	BufferBlocks int       `json:"buffer_blocks"`
	BufferBytes  int       `json:"buffer_bytes"`
	HasBuffer    bool      `json:"has_buffer"`
	Feed         float64   `json:"feed"`
	Speed        float64   `json:"speed"`
	Overrides    Overrides `json:"overrides"`
	Probe        *Vec3     `json:"probe,omitempty"`
	Raw          string    `json:"raw"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewMachineState возвращает состояние до первого отчета контроллера.
func NewMachineState() *MachineState {
	return &MachineState{
		State:     MachineUnknown,
		Overrides: Overrides{Feed: 100, Rapid: 100, Spindle: 100},
	}
}

// InMotion сообщает, выполняет ли станок движение.
func (s *MachineState) InMotion() bool {
	switch s.State {
	case MachineRun, MachineJog, MachineHome:
		return true
	}
	return false
}

// StateMap возвращает поля MPos/Bf/Fs/Ov в виде массивов чисел.
func (s *MachineState) StateMap() map[string][]float64 {
	return map[string][]float64{
		"MPos": {s.MPos.X, s.MPos.Y, s.MPos.Z},
		"Bf":   {float64(s.BufferBlocks), float64(s.BufferBytes)},
		"Fs":   {s.Feed, s.Speed},
		"Ov":   {s.Overrides.Feed, s.Overrides.Rapid, s.Overrides.Spindle},
	}
}

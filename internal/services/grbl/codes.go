package grbl

import (
	"strconv"
	"strings"
)

// Real-time команды GRBL 1.1. Обрабатываются контроллером сразу, минуя буфер строк.
const (
	RTStatusQuery byte = '?'
	RTFeedHold    byte = '!'
	RTCycleStart  byte = '~'
	RTSoftReset   byte = 0x18
	RTFeedReset   byte = 0x90
	RTFeedPlus10  byte = 0x91
	RTFeedMinus10 byte = 0x92
	RTFeedPlus1   byte = 0x93
	RTFeedMinus1  byte = 0x94
)

// Допустимый диапазон коррекции подачи, %.
const (
	MinFeedPercent = 10
	MaxFeedPercent = 200
)

// FeedOverrideBytes возвращает последовательность real-time байтов,
// устанавливающую коррекцию подачи в percent от сброса на 100%.
func FeedOverrideBytes(percent int) []byte {
	seq := []byte{RTFeedReset}
	diff := percent - 100

	coarse, fine := RTFeedPlus10, RTFeedPlus1
	if diff < 0 {
		coarse, fine = RTFeedMinus10, RTFeedMinus1
		diff = -diff
	}
	for i := 0; i < diff/10; i++ {
		seq = append(seq, coarse)
	}
	for i := 0; i < diff%10; i++ {
		seq = append(seq, fine)
	}
	return seq
}

var errorMessages = map[int]string{
	1:  "G-code words consist of a letter and a value. Letter was not found.",
	2:  "Numeric value format is not valid or missing an expected value.",
	3:  "Grbl '$' system command was not recognized or supported.",
	4:  "Negative value received for an expected positive value.",
	5:  "Homing cycle is not enabled via settings.",
	8:  "Grbl '$' command cannot be used unless Grbl is IDLE.",
	9:  "G-code locked out during alarm or jog state.",
	11: "Max characters per line exceeded. Line was not processed and executed.",
	15: "Jog target exceeds machine travel. Command ignored.",
	20: "Unsupported or invalid g-code command found in block.",
	22: "Feed rate has not yet been set or is undefined.",
	24: "Two G-code commands that both require the use of the XYZ axis words were detected in the block.",
	25: "A G-code word was repeated in the block.",
	33: "The motion command has an invalid target.",
}

var alarmMessages = map[int]string{
	1: "Hard limit triggered.",
	2: "Soft limit alarm.",
	3: "Reset while in motion.",
	4: "Probe fail. The probe is not in the expected initial state.",
	5: "Probe fail. Probe did not contact the workpiece.",
	6: "Homing fail. Reset during active homing cycle.",
	7: "Homing fail. Safety door was opened during active homing cycle.",
	8: "Homing fail. Cycle failed to clear limit switch when pulling off.",
	9: "Homing fail. Could not find limit switch within search distance.",
}

// ParseCode разбирает "error:N" или "ALARM:N". Текстовые сообщения старых версий GRBL
// ("error: Bad number format") возвращаются с кодом 0.
func ParseCode(line string) (int, string) {
	_, value, _ := strings.Cut(line, ":")
	value = strings.TrimSpace(value)

	code, err := strconv.Atoi(value)
	if err != nil {
		return 0, value
	}

	table := errorMessages
	if strings.HasPrefix(line, "ALARM") {
		table = alarmMessages
	}
	if msg, ok := table[code]; ok {
		return code, msg
	}
	return code, line
}

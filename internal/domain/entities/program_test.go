package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	content := "; header\r\nG21\nG90 (absolute)\n\n  G0   X10 Y10  \nG1 X5 ; move\n(only comment)\n"
	assert.Equal(t, []string{"G21", "G90", "G0 X10 Y10", "G1 X5"}, SplitLines(content))
}

func TestNewProgramSquare(t *testing.T) {
	p := NewProgram("sq", "G21\nG90\nG0 X10 Y10\n")
	assert.Equal(t, "sq", p.Name)
	assert.Len(t, p.Lines, 3)
	assert.Equal(t, "G21\nG90\nG0 X10 Y10\n", p.Content)
}

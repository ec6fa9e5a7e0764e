package grbl

import (
	"testing"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]LineKind{
		"ok":                            LineOK,
		"error:22":                      LineError,
		"ALARM:1":                       LineAlarm,
		"<Idle|MPos:0.000,0.000,0.000>": LineStatus,
		"[PRB:1.000,2.000,-3.500:1]":    LineProbe,
		"[MSG:Caution: Unlocked]":       LineFeedback,
		"Grbl 1.1h ['$' for help]":      LineWelcome,
		"okay":                          LineUnknown,
		"":                              LineUnknown,
	}
	for line, want := range cases {
		assert.Equal(t, want, Classify(line), line)
	}
}

func TestParseStatusFull(t *testing.T) {
	st, err := ParseStatus("<Run|MPos:1.000,2.500,-3.000|Bf:15,128|Fs:500,12000|Ov:100,50,120>", nil)
	require.NoError(t, err)

	assert.Equal(t, entities.MachineRun, st.State)
	assert.Equal(t, entities.Vec3{X: 1, Y: 2.5, Z: -3}, st.MPos)
	assert.True(t, st.HasBuffer)
	assert.Equal(t, 15, st.BufferBlocks)
	assert.Equal(t, 128, st.BufferBytes)
	assert.Equal(t, 500.0, st.Feed)
	assert.Equal(t, 12000.0, st.Speed)
	assert.Equal(t, entities.Overrides{Feed: 100, Rapid: 50, Spindle: 120}, st.Overrides)
	assert.True(t, st.InMotion())

	m := st.StateMap()
	assert.Equal(t, []float64{1, 2.5, -3}, m["MPos"])
	assert.Equal(t, []float64{15, 128}, m["Bf"])
}

func TestParseStatusKeepsMissingFields(t *testing.T) {
	first, err := ParseStatus("<Idle|MPos:0,0,0|Bf:15,128|FS:0,0|WCO:1,1,1|Ov:110,100,100>", nil)
	require.NoError(t, err)
	require.NotNil(t, first.WPos)
	assert.Equal(t, entities.Vec3{X: -1, Y: -1, Z: -1}, *first.WPos)

	next, err := ParseStatus("<Hold:0|MPos:5,5,5|Bf:10,64|Pn:XZ>", first)
	require.NoError(t, err)
	assert.Equal(t, entities.MachineHold, next.State)
	assert.Equal(t, 64, next.BufferBytes)
	assert.Equal(t, 110.0, next.Overrides.Feed, "Ov отсутствует, значение сохраняется")
	assert.Equal(t, entities.Vec3{X: 4, Y: 4, Z: 4}, *next.WPos)
	assert.Equal(t, 0.0, first.MPos.X, "предыдущий снимок не изменяется")
}

func TestParseStatusWorkPosition(t *testing.T) {
	st, err := ParseStatus("<Idle|WPos:1,2,3|WCO:10,10,10>", nil)
	require.NoError(t, err)
	assert.Equal(t, entities.Vec3{X: 11, Y: 12, Z: 13}, st.MPos)
	assert.False(t, st.HasBuffer)
}

func TestParseStatusMalformed(t *testing.T) {
	for _, line := range []string{
		"Idle|MPos:0,0,0",
		"<>",
		"<|MPos:0,0,0>",
		"<Idle|MPos:a,b,c>",
		"<Idle|MPos:1,2>",
		"<Idle|Bf:15>",
		"<Idle|garbage>",
	} {
		_, err := ParseStatus(line, nil)
		assert.Error(t, err, line)
	}
}

func TestParseProbe(t *testing.T) {
	pos, ok, err := ParseProbe("[PRB:1.000,2.000,-3.500:1]")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entities.Vec3{X: 1, Y: 2, Z: -3.5}, pos)

	_, ok, err = ParseProbe("[PRB:0,0,0:0]")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseProbe("[PRB:x]")
	assert.Error(t, err)
}

func TestParseCode(t *testing.T) {
	code, msg := ParseCode("error:22")
	assert.Equal(t, 22, code)
	assert.Contains(t, msg, "Feed rate")

	code, msg = ParseCode("ALARM:1")
	assert.Equal(t, 1, code)
	assert.Equal(t, "Hard limit triggered.", msg)

	code, msg = ParseCode("error:99")
	assert.Equal(t, 99, code)
	assert.Equal(t, "error:99", msg)

	code, msg = ParseCode("error: Bad number format")
	assert.Zero(t, code)
	assert.Equal(t, "Bad number format", msg)
}

func TestFeedOverrideBytes(t *testing.T) {
	assert.Equal(t, []byte{RTFeedReset}, FeedOverrideBytes(100))
	assert.Equal(t, []byte{RTFeedReset, RTFeedPlus10, RTFeedPlus10, RTFeedPlus1, RTFeedPlus1, RTFeedPlus1}, FeedOverrideBytes(123))
	assert.Equal(t, []byte{RTFeedReset, RTFeedMinus10, RTFeedMinus1, RTFeedMinus1}, FeedOverrideBytes(88))

	seq := FeedOverrideBytes(10)
	assert.Len(t, seq, 1+9)
	seq = FeedOverrideBytes(200)
	assert.Len(t, seq, 1+10)
}

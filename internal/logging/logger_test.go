package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Warn", WARN, false},
		{"error", ERROR, false},
		{"FATAL", FATAL, false},
		{"verbose", -1, true},
		{"", -1, true},
	}

	for _, tt := range tests {
		got, err := parseLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestPackageLogLevels(t *testing.T) {
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()

	err := SetPackageLogLevels(map[string]string{
		"memory.*":        "debug",
		"memory.temporal": "error",
		"graph":           "warn",
	})
	require.NoError(t, err)

	// Exact match wins over the wildcard.
	assert.Equal(t, ERROR, GetPackageLogLevel("memory.temporal"))
	assert.Equal(t, DEBUG, GetPackageLogLevel("memory.semantic"))
	assert.Equal(t, WARN, GetPackageLogLevel("graph"))
	// Wildcard does not match the bare prefix.
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("memory"))
	assert.Equal(t, LogLevel(-1), GetPackageLogLevel("mcp"))
}

func TestPackageLogLevelsInvalid(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"memory.*": "loud"})
	assert.Error(t, err)
}

func TestWithFieldImmutability(t *testing.T) {
	base := GetLogger("test")
	child := base.WithField("session", "abc")

	assert.Empty(t, base.fields)
	assert.Equal(t, "abc", child.fields["session"])

	grandchild := child.WithFields(Field("tool", "remember"), Field("session", "xyz"))
	assert.Equal(t, "abc", child.fields["session"])
	assert.Equal(t, "xyz", grandchild.fields["session"])
	assert.Equal(t, "remember", grandchild.fields["tool"])
}

func TestExtractContextFields(t *testing.T) {
	assert.Nil(t, extractContextFields(nil))
	assert.Nil(t, extractContextFields(context.Background()))

	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-1")
	ctx = context.WithValue(ctx, SpanIDKey(), "span-2")

	fields := extractContextFields(ctx)
	require.NotNil(t, fields)
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "span-2", fields["span_id"])
}

func TestFatalUsesExitFunc(t *testing.T) {
	origExit := exitFunc
	defer func() { exitFunc = origExit }()

	var code int
	exitFunc = func(c int) { code = c }

	GetLogger("test").Fatal("boom")
	assert.Equal(t, 1, code)
}

func TestShouldLogRespectsOverride(t *testing.T) {
	defer func() { _ = SetPackageLogLevels(map[string]string{}) }()
	require.NoError(t, SetPackageLogLevels(map[string]string{"quiet.*": "error"}))

	l := GetLogger("quiet.component")
	assert.False(t, l.shouldLog(INFO))
	assert.True(t, l.shouldLog(ERROR))
}

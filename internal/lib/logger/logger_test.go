package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		wantJSON  bool
		wantDebug bool
	}{
		{name: "local is text with debug", env: EnvLocal, wantJSON: false, wantDebug: true},
		{name: "dev is json with debug", env: EnvDev, wantJSON: true, wantDebug: true},
		{name: "prod is json without debug", env: EnvProd, wantJSON: true, wantDebug: false},
		{name: "unknown env falls back to prod", env: "staging", wantJSON: true, wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.env, &buf)

			log.Debug("debug message")
			assert.Equal(t, tt.wantDebug, strings.Contains(buf.String(), "debug message"))

			buf.Reset()
			log.Info("info message")
			require.NotEmpty(t, buf.String())

			var decoded map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &decoded) == nil
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

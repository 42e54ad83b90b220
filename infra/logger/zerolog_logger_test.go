package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer assert.NoError(t, os.Unsetenv("APP_ENV"))
	l := NewZerologLogger("pipeline")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("iteration %d", 1)
	l.Debugw("solve", map[string]any{"gap": 0.01, "nodes": 12})
	l.Infof("run %s done", "run-1")
	l.Warnf("advisor unavailable, using fallback")
	l.Errorf("export failed")
}

//go:build debug

package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/justyntemme/fexplorer/internal/logging"
)

func TestLogWritesAtInfo(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logging.Replace(zap.New(core))
	t.Cleanup(func() { logging.Replace(nil) })

	Enable(FS)
	Disable(FS_COPY)
	t.Cleanup(func() { Enable(FS) })

	Log(FS, "listed %d entries", 3)
	Log(FS_COPY, "not shown")

	all := logs.All()
	require.Len(t, all, 1)
	assert.Equal(t, "listed 3 entries", all[0].Message)
	assert.Equal(t, "FS", all[0].ContextMap()["category"])
}

package pprof

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterServesProfiles(t *testing.T) {
	router := httprouter.New()
	Register(router)

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine", "/debug/pprof/heap"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProfilerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfile:  filepath.Join(dir, "cpu.pprof"),
		HeapProfile: filepath.Join(dir, "nested", "heap.pprof"),
	}
	require.True(t, cfg.Enabled())

	p := NewProfiler(cfg)
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	for _, path := range []string{cfg.CPUProfile, cfg.HeapProfile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), path)
	}
}

func TestProfilerDisabled(t *testing.T) {
	p := NewProfiler(Config{})
	assert.False(t, Config{}.Enabled())
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
}

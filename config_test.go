package wavm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavmgo/wavm/internal/wasi"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

func TestRuntimeConfig_With(t *testing.T) {
	base := NewRuntimeConfig()

	t.Run("WithCoreFeatures", func(t *testing.T) {
		c := base.WithCoreFeatures(wasm.FeatureMultiValue)
		require.Equal(t, wasm.FeatureMultiValue, c.enabledFeatures)
		require.Equal(t, wasm.Features20220419, base.enabledFeatures) // unmodified
	})

	t.Run("WithMemoryLimitPages", func(t *testing.T) {
		c := base.WithMemoryLimitPages(10)
		require.Equal(t, uint32(10), c.memoryLimitPages)
		require.Equal(t, wasm.MemoryMaxPages, base.memoryLimitPages) // unmodified
	})

	t.Run("WithCompilationCache", func(t *testing.T) {
		ca := NewCache()
		c := base.WithCompilationCache(ca)
		require.Same(t, ca, c.cache)
		require.Nil(t, base.cache) // unmodified
	})
}

func TestModuleConfig_With(t *testing.T) {
	base := NewModuleConfig()
	require.Equal(t, []string{"_start"}, base.startFunctions)

	t.Run("WithName", func(t *testing.T) {
		c := base.WithName("guest")
		require.Equal(t, "guest", c.name)
		require.Equal(t, "", base.name) // unmodified
	})

	t.Run("WithStartFunctions", func(t *testing.T) {
		c := base.WithStartFunctions("init", "main")
		require.Equal(t, []string{"init", "main"}, c.startFunctions)
		require.Equal(t, []string{"_start"}, base.startFunctions) // unmodified

		none := base.WithStartFunctions()
		require.Empty(t, none.startFunctions)
	})

	t.Run("WithArgs", func(t *testing.T) {
		c := base.WithArgs("prog", "a", "b")
		require.Equal(t, []string{"prog", "a", "b"}, c.args)
	})

	t.Run("WithEnv accumulates", func(t *testing.T) {
		c := base.WithEnv("A", "1").WithEnv("B", "2")
		require.Equal(t, []string{"A=1", "B=2"}, c.env)
		require.Empty(t, base.env) // unmodified
	})

	t.Run("WithStdin/WithStdout/WithStderr", func(t *testing.T) {
		in := bytes.NewReader([]byte("hi"))
		var out, errOut bytes.Buffer
		c := base.WithStdin(in).WithStdout(&out).WithStderr(&errOut)
		require.Same(t, in, c.stdin)
		require.Same(t, &out, c.stdout)
		require.Same(t, &errOut, c.stderr)
	})

	t.Run("WithFSPreopen", func(t *testing.T) {
		fs := wasi.NewOSFS(t.TempDir())
		c := base.WithFSPreopen("/", fs)
		require.Same(t, fs, c.preopens["/"])
		require.Empty(t, base.preopens) // unmodified
	})
}

func TestModuleConfig_clone_deepCopiesMaps(t *testing.T) {
	base := NewModuleConfig().WithFSPreopen("/a", wasi.NewOSFS(t.TempDir()))
	cloned := base.clone()
	cloned.preopens["/b"] = wasi.NewOSFS(t.TempDir())

	require.Len(t, base.preopens, 1)
	require.Len(t, cloned.preopens, 2)
}

func TestModuleConfig_toProcess(t *testing.T) {
	c := NewModuleConfig().WithArgs("prog").WithEnv("FOO", "bar")
	p := c.toProcess()
	require.NotNil(t, p)
}

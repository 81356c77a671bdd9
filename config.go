package wavm

import (
	"io"

	"github.com/wavmgo/wavm/internal/wasi"
	wasm "github.com/wavmgo/wavm/internal/wasm"
)

// RuntimeConfig controls Runtime-wide behavior: which instruction-set
// features are enabled and what memory limit new modules are capped at
// (spec.md §6's feature table, component F's Codegen target selection).
// The default, returned by NewRuntimeConfig, enables every feature of
// Features20220419 and the full 4GiB memory limit.
type RuntimeConfig struct {
	enabledFeatures  wasm.Features
	memoryLimitPages uint32
	cache            Cache
}

// NewRuntimeConfig returns the default RuntimeConfig.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		enabledFeatures:  wasm.Features20220419,
		memoryLimitPages: wasm.MemoryMaxPages,
	}
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithCoreFeatures replaces the enabled instruction-set feature bitset
// entirely; start from an existing RuntimeConfig's features and mask with
// wasm.Feature* constants to turn individual ones off.
func (c *RuntimeConfig) WithCoreFeatures(features wasm.Features) *RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = features
	return ret
}

// WithMemoryLimitPages caps the number of 64KiB pages any memory in a module
// compiled under this config may grow to, overriding a module's own
// declared max (never raising it).
func (c *RuntimeConfig) WithMemoryLimitPages(pages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryLimitPages = pages
	return ret
}

// WithCompilationCache attaches a Cache so CompileModule's Codegen output
// can be reused across Runtime instances sharing the same cache (spec.md §6
// "precompiled module loading").
func (c *RuntimeConfig) WithCompilationCache(ca Cache) *RuntimeConfig {
	ret := c.clone()
	ret.cache = ca
	return ret
}

// ModuleConfig configures one InstantiateModule call: the module's
// registered name, its WASI-facing args/env/stdio/filesystem capabilities,
// and which functions (if any) run automatically after instantiation
// (spec.md §4.10's Process, threaded through by Runtime.InstantiateModule).
type ModuleConfig struct {
	name           string
	startFunctions []string

	args []string
	env  []string

	stdin          io.Reader
	stdout, stderr io.Writer

	preopens map[string]wasi.FS
}

// NewModuleConfig returns a ModuleConfig naming the module "" with no args,
// env, preopens, and /dev/null-equivalent stdio.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{
		startFunctions: []string{"_start"},
		stdin:          io.MultiReader(),
		stdout:         io.Discard,
		stderr:         io.Discard,
		preopens:       map[string]wasi.FS{},
	}
}

func (c *ModuleConfig) clone() *ModuleConfig {
	ret := *c
	ret.args = append([]string{}, c.args...)
	ret.env = append([]string{}, c.env...)
	ret.startFunctions = append([]string{}, c.startFunctions...)
	ret.preopens = make(map[string]wasi.FS, len(c.preopens))
	for k, v := range c.preopens {
		ret.preopens[k] = v
	}
	return &ret
}

// WithName overrides the module's registered name, used by other modules'
// imports and by Runtime.Module to look the instance back up.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := c.clone()
	ret.name = name
	return ret
}

// WithStartFunctions replaces the list of exported functions invoked, in
// order, immediately after instantiation succeeds (in addition to the
// module's own start section, which always runs first per spec.md §4.4
// step 9). Defaults to {"_start"}; pass no arguments to run nothing.
func (c *ModuleConfig) WithStartFunctions(names ...string) *ModuleConfig {
	ret := c.clone()
	ret.startFunctions = names
	return ret
}

// WithArgs sets the argv a WASI guest sees from args_sizes_get/args_get.
func (c *ModuleConfig) WithArgs(args ...string) *ModuleConfig {
	ret := c.clone()
	ret.args = args
	return ret
}

// WithEnv appends one KEY=value pair to the WASI guest's environment.
func (c *ModuleConfig) WithEnv(key, value string) *ModuleConfig {
	ret := c.clone()
	ret.env = append(append([]string{}, c.env...), key+"="+value)
	return ret
}

// WithStdin sets the reader fd 0 reads from.
func (c *ModuleConfig) WithStdin(stdin io.Reader) *ModuleConfig {
	ret := c.clone()
	ret.stdin = stdin
	return ret
}

// WithStdout sets the writer fd 1 writes to.
func (c *ModuleConfig) WithStdout(stdout io.Writer) *ModuleConfig {
	ret := c.clone()
	ret.stdout = stdout
	return ret
}

// WithStderr sets the writer fd 2 writes to.
func (c *ModuleConfig) WithStderr(stderr io.Writer) *ModuleConfig {
	ret := c.clone()
	ret.stderr = stderr
	return ret
}

// WithFSPreopen grants the guest a capability rooted at guestPath, backed by
// fs (spec.md §4.10 "optionally a root directory"). Call multiple times to
// preopen several directories under different guest-visible paths.
func (c *ModuleConfig) WithFSPreopen(guestPath string, fs wasi.FS) *ModuleConfig {
	ret := c.clone()
	ret.preopens[guestPath] = fs
	return ret
}

// toProcess builds the wasi.Process this config describes. It always returns
// a Process, even when no args/env/stdio/preopen option was set.
func (c *ModuleConfig) toProcess() *wasi.Process {
	p := wasi.NewProcess(c.args, c.env)
	p.BindStdio(c.stdin, c.stdout, c.stderr)
	for guestPath, fs := range c.preopens {
		p.Preopen(guestPath, fs)
	}
	return p
}

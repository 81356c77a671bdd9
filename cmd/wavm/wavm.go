// Command wavm compiles and runs a WebAssembly binary from the command
// line, wiring up wasi_snapshot_preview1 the same way Runtime.
// InstantiateModule would for an embedder (spec.md §4.10, §6).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/wavmgo/wavm"
	"github.com/wavmgo/wavm/internal/dbgtrace"
	"github.com/wavmgo/wavm/internal/trap"
	"github.com/wavmgo/wavm/internal/wasi"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut io.Writer, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "Prints usage.")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		return 0
	}

	switch subCmd := flag.Arg(0); subCmd {
	case "compile":
		return doCompile(flag.Args()[1:], stdErr)
	case "run":
		return doRun(flag.Args()[1:], stdOut, stdErr)
	case "version":
		fmt.Fprintln(stdOut, version)
		return 0
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 1
	}
}

// version is overwritten by a release build's -ldflags; "dev" otherwise.
var version = "dev"

func doCompile(args []string, stdErr io.Writer) int {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")
	cacheDir := flags.String("cachedir", "", "Writeable directory for precompiled objects, re-used across runs.")
	cpuProfile := flags.String("cpuprofile", "", "Enables cpu profiling and writes the profile at the given path.")
	memProfile := flags.String("memprofile", "", "Enables memory profiling and writes the profile at the given path.")
	_ = flags.Parse(args)

	if help {
		printCompileUsage(stdErr, flags)
		return 0
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printCompileUsage(stdErr, flags)
		return 1
	}

	if *memProfile != "" {
		defer writeHeapProfile(stdErr, *memProfile)
	}
	if *cpuProfile != "" {
		defer startCPUProfile(stdErr, *cpuProfile)()
	}

	wasmBytes, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		return 1
	}

	c := wavm.NewRuntimeConfig()
	if rc, cache := maybeUseCacheDir(*cacheDir, stdErr); rc != 0 {
		return rc
	} else if cache != nil {
		c = c.WithCompilationCache(cache)
	}

	ctx := context.Background()
	rt := wavm.NewRuntimeWithConfig(ctx, c)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		return 1
	}
	if err := compiled.Close(ctx); err != nil {
		fmt.Fprintf(stdErr, "error releasing compiled module: %v\n", err)
		return 1
	}
	return 0
}

func doRun(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var envs sliceFlag
	flags.Var(&envs, "env", "key=value pair of environment variable to expose to the binary. "+
		"Can be specified multiple times.")

	var envInherit bool
	flags.BoolVar(&envInherit, "env-inherit", false, "Inherits the calling process' environment variables.")

	var mounts sliceFlag
	flags.Var(&mounts, "mount",
		"Host directory to expose to the binary, in the form <path>[:<wasm path>]. "+
			"May be specified multiple times. When <wasm path> is unset, <path> is used.")

	var timeout time.Duration
	flags.DurationVar(&timeout, "timeout", 0, "Exit abruptly if the binary runs longer than this duration. "+
		"0 disables the timeout.")

	cacheDir := flags.String("cachedir", "", "Writeable directory for precompiled objects, re-used across runs.")
	cpuProfile := flags.String("cpuprofile", "", "Enables cpu profiling and writes the profile at the given path.")
	memProfile := flags.String("memprofile", "", "Enables memory profiling and writes the profile at the given path.")
	_ = flags.Parse(args)

	if help {
		printRunUsage(stdErr, flags)
		return 0
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printRunUsage(stdErr, flags)
		return 1
	}

	if *memProfile != "" {
		defer writeHeapProfile(stdErr, *memProfile)
	}
	if *cpuProfile != "" {
		defer startCPUProfile(stdErr, *cpuProfile)()
	}

	wasmPath := flags.Arg(0)
	wasmArgs := flags.Args()[1:]
	if len(wasmArgs) > 0 && wasmArgs[0] == "--" {
		wasmArgs = wasmArgs[1:]
	}

	if envInherit {
		envs = append(os.Environ(), envs...)
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		return 1
	}
	wasmExe := filepath.Base(wasmPath)

	rc := wavm.NewRuntimeConfig()
	if code, cache := maybeUseCacheDir(*cacheDir, stdErr); code != 0 {
		return code
	} else if cache != nil {
		rc = rc.WithCompilationCache(cache)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rt := wavm.NewRuntimeWithConfig(ctx, rc)
	defer rt.Close(ctx)

	conf := wavm.NewModuleConfig().
		WithStdout(stdOut).
		WithStderr(stdErr).
		WithStdin(os.Stdin).
		WithArgs(append([]string{wasmExe}, wasmArgs...)...)

	for _, e := range envs {
		fields := strings.SplitN(e, "=", 2)
		if len(fields) != 2 {
			fmt.Fprintf(stdErr, "invalid environment variable: %s\n", e)
			return 1
		}
		conf = conf.WithEnv(fields[0], fields[1])
	}

	for _, mount := range mounts {
		dir, guestPath, code := parseMount(mount, stdErr)
		if code != 0 {
			return code
		}
		conf = conf.WithFSPreopen(guestPath, wasi.NewOSFS(dir))
	}

	guest, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		return 1
	}

	_, err = rt.InstantiateModule(ctx, guest, conf)
	if err != nil {
		if exitErr, ok := err.(*wavm.ExitError); ok {
			return int(exitErr.ExitCode)
		}
		fmt.Fprintf(stdErr, "error instantiating wasm binary: %v\n", err)
		printStackTrace(stdErr, err)
		return 1
	}
	return 0
}

// printStackTrace renders err's guest call stack, if it wraps a *trap.Trap
// with one, the way a launcher reports where in the guest a trap happened.
func printStackTrace(stdErr io.Writer, err error) {
	var t *trap.Trap
	if !errors.As(err, &t) || len(t.Frames) == 0 {
		return
	}
	var b dbgtrace.Builder
	for _, f := range t.Frames {
		b.AddFrame(dbgtrace.FuncName(f.ModuleName, f.FuncName, 0))
	}
	fmt.Fprint(stdErr, "wasm stack trace:\n", b.String())
}

func parseMount(mount string, stdErr io.Writer) (dir, guestPath string, rc int) {
	if mount == "" {
		fmt.Fprintln(stdErr, "invalid mount: empty string")
		return "", "", 1
	}
	if idx := strings.LastIndexByte(mount, ':'); idx != -1 {
		dir, guestPath = mount[:idx], mount[idx+1:]
	} else {
		dir, guestPath = mount, mount
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid mount: path %q invalid: %v\n", dir, err)
		return "", "", 1
	}
	if stat, err := os.Stat(abs); err != nil {
		fmt.Fprintf(stdErr, "invalid mount: path %q error: %v\n", abs, err)
		return "", "", 1
	} else if !stat.IsDir() {
		fmt.Fprintf(stdErr, "invalid mount: path %q is not a directory\n", abs)
		return "", "", 1
	}
	return abs, guestPath, 0
}

func maybeUseCacheDir(dir string, stdErr io.Writer) (int, wavm.Cache) {
	if dir == "" {
		return 0, nil
	}
	cache := wavm.NewCache()
	if err := cache.WithCompilationCacheDirName(dir); err != nil {
		fmt.Fprintf(stdErr, "invalid cachedir: %v\n", err)
		return 1, nil
	}
	return 0, cache
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wavm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wavm <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  compile\tPre-compiles a WebAssembly binary")
	fmt.Fprintln(stdErr, "  run\t\tRuns a WebAssembly binary")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of the wavm CLI")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wavm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wavm compile <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printRunUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wavm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wavm run <options> <path to wasm file> [--] <wasm args>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func startCPUProfile(stdErr io.Writer, path string) (stopCPUProfile func()) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stdErr, "error creating cpu profile output: %v\n", err)
		return func() {}
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		fmt.Fprintf(stdErr, "error starting cpu profile: %v\n", err)
		return func() {}
	}
	return func() {
		defer f.Close()
		pprof.StopCPUProfile()
	}
}

func writeHeapProfile(stdErr io.Writer, path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stdErr, "error creating memory profile output: %v\n", err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(stdErr, "error writing memory profile: %v\n", err)
	}
}

type sliceFlag []string

func (f *sliceFlag) String() string { return strings.Join(*f, ",") }

func (f *sliceFlag) Set(s string) error {
	*f = append(*f, s)
	return nil
}

// Package ffi binds the native real-time media engine shared library via
// purego. It owns library loading, symbol registration and the callback
// trampolines that carry engine events back into Go.
package ffi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
)

var (
	// ErrLibraryNotLoaded is returned when the engine library hasn't been loaded.
	ErrLibraryNotLoaded = errors.New("nativertc engine library not loaded")

	// ErrLibraryNotFound is returned when the engine library cannot be found.
	ErrLibraryNotFound = errors.New("nativertc engine library not found")

	// ErrVersionMismatch is returned when the engine ABI version doesn't match.
	ErrVersionMismatch = errors.New("engine version mismatch")
)

// ExpectedEngineVersion is the engine ABI version this binding expects.
const ExpectedEngineVersion = "1.0.0"

var (
	libHandle uintptr
	libLoaded atomic.Bool // lock-free reads on the hot path
	libMu     sync.Mutex  // serializes load/unload

	logger = zerolog.Nop()
)

// SetLogger routes binding diagnostics (recovered callback panics, load
// failures) to the given logger. The default discards everything.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// LoadLibrary loads the engine shared library and registers its symbols.
// It searches in the following locations:
// 1. Path specified by NATIVERTC_ENGINE_PATH environment variable
// 2. lib/{os}_{arch}/ relative to the executable, working directory and module root
// 3. System library paths
func LoadLibrary() error {
	libMu.Lock()
	defer libMu.Unlock()

	if libLoaded.Load() {
		return nil
	}

	libPath, found := findLocalLibrary()
	if !found {
		// Fall back to the bare library name and let the loader search
		// the system paths.
		libPath = getLibraryName()
	}

	handle, err := dlopenLibrary(libPath, RTLD_NOW|RTLD_GLOBAL)
	if err != nil {
		if !found {
			return fmt.Errorf("%w: %v", ErrLibraryNotFound, err)
		}
		return fmt.Errorf("failed to load %s: %w", libPath, err)
	}

	libHandle = handle
	if err := registerFunctions(); err != nil {
		_ = dlcloseLibrary(handle)
		libHandle = 0
		return err
	}

	initCallbacks()
	libLoaded.Store(true)
	logger.Debug().Str("path", libPath).Msg("engine library loaded")
	return nil
}

// MustLoadLibrary loads the library and panics on failure.
func MustLoadLibrary() {
	if err := LoadLibrary(); err != nil {
		panic(fmt.Sprintf("nativertc: %v", err))
	}
}

// IsLoaded reports whether the engine library is loaded.
func IsLoaded() bool {
	return libLoaded.Load()
}

// Close unloads the engine library. Callers must have released every engine
// handle first; unloading with live handles is undefined behavior.
func Close() error {
	libMu.Lock()
	defer libMu.Unlock()

	if !libLoaded.Load() {
		return nil
	}

	if err := dlcloseLibrary(libHandle); err != nil {
		return err
	}

	libLoaded.Store(false)
	libHandle = 0
	return nil
}

// EngineVersion returns the loaded engine's ABI version string, or "" when
// the library is not loaded.
func EngineVersion() string {
	if !libLoaded.Load() {
		return ""
	}
	ptr := engineVersion()
	if ptr == 0 {
		return ""
	}
	return GoString(unsafe.Pointer(ptr))
}

// CheckVersion verifies the engine ABI version matches what this binding
// expects.
func CheckVersion() error {
	if !libLoaded.Load() {
		return ErrLibraryNotLoaded
	}
	if v := EngineVersion(); v != ExpectedEngineVersion {
		return fmt.Errorf("%w: engine version %q, expected %q", ErrVersionMismatch, v, ExpectedEngineVersion)
	}
	return nil
}

func findLocalLibrary() (string, bool) {
	if path := os.Getenv("NATIVERTC_ENGINE_PATH"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	libName := getLibraryName()
	platformDir := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)

	var searchPaths []string

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		searchPaths = append(searchPaths, filepath.Join(execDir, "lib", platformDir, libName))
	}

	if wd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(wd, "lib", platformDir, libName),
			filepath.Join(wd, "..", "lib", platformDir, libName),
		)
	}

	// Relative to this source file, for development checkouts.
	_, thisFile, _, ok := runtime.Caller(0)
	if ok {
		moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(thisFile))))
		searchPaths = append(searchPaths, filepath.Join(moduleRoot, "lib", platformDir, libName))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			return absPath, true
		}
	}

	return "", false
}

func getLibraryName() string {
	return getLibraryNameFor(runtime.GOOS)
}

func getLibraryNameFor(goos string) string {
	switch goos {
	case "darwin":
		return "libnativertc_engine.dylib"
	case "windows":
		return "nativertc_engine.dll"
	default:
		return "libnativertc_engine.so"
	}
}

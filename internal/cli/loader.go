package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/interlock/internal/compiler"
)

// LoadResult contains a loaded keymap.
type LoadResult struct {
	Keymap    *compiler.Keymap
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during keymap loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadKeymap loads and compiles a keymap.
//
// path may be a single .cue file or a directory; a directory is loaded as
// one CUE package, so a keymap may be split across files.
//
// A nil result means nothing could be compiled. A non-nil result with
// errors carries the CUE value but no Keymap.
func LoadKeymap(path string) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("keymap not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing keymap: %v", err)}}
	}

	var result *LoadResult
	if info.IsDir() {
		result, err = loadKeymapDir(path)
	} else {
		result, err = loadKeymapFile(path)
	}
	if err != nil {
		return nil, []error{err}
	}

	km, err := compiler.CompileKeymap(result.CUEValue)
	if err != nil {
		return result, []error{convertCompileError(err, path)}
	}
	result.Keymap = km
	return result, nil
}

func loadKeymapFile(path string) (*LoadResult, error) {
	if filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a CUE file: %s", path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading keymap: %v", err)}
	}

	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return &LoadResult{CUEValue: value, FileCount: 1}, nil
}

func loadKeymapDir(dir string) (*LoadResult, error) {
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return &LoadResult{CUEValue: value, FileCount: len(cueFiles)}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		code := compileErr.Code
		if code == "" {
			code = MapFieldToErrorCode(compileErr.Field)
		}
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Database open/read/write error

	// Keymap structure errors
	ErrCodeRules    = "E101" // rules missing or malformed
	ErrCodeFeatures = "E102" // features malformed
	ErrCodeLedger   = "E103" // ledger.capacity malformed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case strings.HasPrefix(field, "rules"):
		return ErrCodeRules
	case strings.HasPrefix(field, "features"):
		return ErrCodeFeatures
	case strings.HasPrefix(field, "ledger"):
		return ErrCodeLedger
	default:
		return ErrCodeGeneric
	}
}

// loadValidKeymap loads a keymap and runs semantic validation, collapsing
// any failure into one ExitCommandError. Used by commands that need a
// keymap to act on rather than a report about it.
func loadValidKeymap(path string) (*compiler.Keymap, error) {
	result, errs := LoadKeymap(path)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load keymap", errs[0])
	}
	if verrs := compiler.Validate(result.Keymap); len(verrs) > 0 {
		return nil, WrapExitError(ExitCommandError, "invalid keymap", verrs[0])
	}
	return result.Keymap, nil
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/interlock/internal/compiler"
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledKeymap is the canonical form of a keymap, as written by -o.
type CompiledKeymap struct {
	RulesHash string        `json:"rules_hash"`
	Rules     []RuleView    `json:"rules"`
	Features  feature.Flags `json:"features"`
	Capacity  int           `json:"capacity"`
	Chains    []ChainView   `json:"chains,omitempty"`
}

// RuleView is a rule with both the keycode names and values.
type RuleView struct {
	Trigger        string `json:"trigger"`
	Suppressed     string `json:"suppressed"`
	TriggerCode    uint16 `json:"trigger_code"`
	SuppressedCode uint16 `json:"suppressed_code"`
}

// ChainView is a chain warning with keycode names.
type ChainView struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <keymap>",
		Short: "Compile a CUE keymap to canonical JSON",
		Long: `Compile a CUE keymap to its canonical JSON form.

The output lists the rules in declaration order together with the rule
table hash that sessions are recorded under, the default feature flags,
the ledger capacity, and any suppression chains.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadKeymap(path)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	km := loadResult.Keymap
	if verrs := compiler.Validate(km); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return outputCompileErrors(formatter, errs)
	}

	result := NewCompiledKeymap(km)

	if opts.Output != "" {
		if err := writeKeymapToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// NewCompiledKeymap builds the canonical form of a compiled keymap.
func NewCompiledKeymap(km *compiler.Keymap) CompiledKeymap {
	out := CompiledKeymap{
		RulesHash: km.Rules.Hash(),
		Rules:     make([]RuleView, 0, km.Rules.Count()),
		Features:  km.Features,
		Capacity:  km.Capacity,
	}
	for _, r := range km.Rules.Rules() {
		out.Rules = append(out.Rules, RuleView{
			Trigger:        r.Trigger.String(),
			Suppressed:     r.Suppressed.String(),
			TriggerCode:    uint16(r.Trigger),
			SuppressedCode: uint16(r.Suppressed),
		})
	}
	for _, w := range compiler.AnalyzeChains(km.Rules) {
		out.Chains = append(out.Chains, ChainView{Path: keyNames(w.Path), Message: w.Message})
	}
	return out
}

func keyNames(keys []keycode.Keycode) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return names
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompiledKeymap, outputFile string) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d rule(s)\n\n", len(result.Rules))

	fmt.Fprintln(formatter.Writer, "Rules:")
	for _, r := range result.Rules {
		fmt.Fprintf(formatter.Writer, "  %s → %s\n", r.Trigger, r.Suppressed)
	}
	fmt.Fprintln(formatter.Writer)

	fmt.Fprintf(formatter.Writer, "Hash:     %s\n", result.RulesHash)
	fmt.Fprintf(formatter.Writer, "Features: %s\n", result.Features)
	fmt.Fprintf(formatter.Writer, "Capacity: %d\n", result.Capacity)

	if len(result.Chains) > 0 {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Chains:")
		for _, c := range result.Chains {
			fmt.Fprintf(formatter.Writer, "  %s\n", c.Message)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled keymap to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.IsJSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code, fmt.Sprintf("%s: %s", verr.Field, verr.Message)
	}
	return ErrCodeGeneric, err.Error()
}

// writeKeymapToFile writes the compiled keymap as indented JSON.
func writeKeymapToFile(result CompiledKeymap, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling keymap: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

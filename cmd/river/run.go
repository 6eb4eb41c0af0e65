package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/criyle/river"
	"github.com/criyle/river/pkg/metrics"
	"github.com/criyle/river/pkg/pipe"
	"github.com/criyle/river/runner"
	"github.com/criyle/river/runner/process"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command line>",
		Short: "Run a command line once and report its outcome",
		Long: `Run a command line once and report its outcome.

A single argument is parsed as a command line; multiple arguments are
taken as the argument vector. Every flag could also be set by the
matching RIVER_* environment variable, e.g. RIVER_TIME_LIMIT=1000.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, v, args)
		},
	}

	f := cmd.Flags()
	f.Int64("time-limit", 0, "Wall clock limit in ms, 0 for none")
	f.Int64("cpu-time-limit", 0, "CPU time limit in ms, defaults to the time limit")
	f.Int64("memory-limit", 0, "Memory limit in KB, 0 for none")
	f.String("in", "", "File used as stdin")
	f.String("out", "", "File used as stdout")
	f.String("err", "", "File used as stderr")
	f.String("work-dir", "", "Working directory of the program")
	f.String("format", "text", "Output format (text, yaml)")
	f.String("metrics-textfile", "", "Write run metrics to this file in the textfile format")
	f.String("output-limit", "", "Largest file the program could write (e.g. 64m), empty to inherit")
	f.String("stack-limit", "", "Stack size of the program (e.g. 8m), empty to inherit")
	f.StringSlice("deny-syscall", nil, "Syscalls failing with EPERM in the program")
	f.String("capture-err", "", "Report at most this much of stderr (e.g. 4k) when --err is unset")

	for _, name := range []string{
		"time-limit", "cpu-time-limit", "memory-limit",
		"in", "out", "err", "work-dir",
		"format", "metrics-textfile",
		"output-limit", "stack-limit", "deny-syscall", "capture-err",
	} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

func runCommand(cmd *cobra.Command, v *viper.Viper, args []string) error {
	format := v.GetString("format")
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}
	logger, err := newLogger(v)
	if err != nil {
		return err
	}

	r, err := river.New(commandLine(args))
	if err != nil {
		return err
	}
	if err := applyLimits(r, v); err != nil {
		return err
	}
	if err := applyConfig(r, v); err != nil {
		return err
	}
	if dir := v.GetString("work-dir"); dir != "" {
		if err := r.SetWorkDir(dir); err != nil {
			return err
		}
	}
	if err := r.SetLogger(logger); err != nil {
		return err
	}

	var m *metrics.Prometheus
	if v.GetString("metrics-textfile") != "" {
		m = metrics.NewPrometheus()
		if err := r.SetRecorder(m); err != nil {
			return err
		}
	}

	files, err := prepareFiles(v.GetString("in"), v.GetString("out"), v.GetString("err"))
	if err != nil {
		return &river.SetupError{Op: river.OpFiles, Err: err}
	}
	defer closeFiles(files)
	setFd := []func(int) error{r.SetInFd, r.SetOutFd, r.SetErrFd}
	for i, f := range files {
		if f == nil {
			continue
		}
		if err := setFd[i](int(f.Fd())); err != nil {
			return err
		}
	}

	var captured *pipe.Buffer
	if files[2] == nil && v.GetString("capture-err") != "" {
		var limit runner.Size
		if err := limit.Set(v.GetString("capture-err")); err != nil {
			return fmt.Errorf("--capture-err: %w", err)
		}
		if captured, err = pipe.NewBuffer(int64(limit)); err != nil {
			return &river.SetupError{Op: river.OpFiles, Err: err}
		}
		defer captured.W.Close()
		if err := r.SetErrFd(int(captured.W.Fd())); err != nil {
			return err
		}
	}

	logger.Debug().Stringer("river", r).Msg("running")
	outcome, runErr := r.RunContext(cmd.Context())
	if captured != nil {
		captured.W.Close()
		<-captured.Done
	}

	if m != nil {
		if err := m.WriteToTextfile(v.GetString("metrics-textfile")); err != nil {
			logger.Warn().Err(err).Msg("failed to write metrics")
		}
	}
	if runErr != nil {
		return runErr
	}
	if captured == nil {
		return writeOutcome(cmd.OutOrStdout(), format, outcome)
	}
	return writeCaptured(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, outcome, captured)
}

// applyConfig overrides the default process config from the flags
func applyConfig(r *river.River, v *viper.Viper) error {
	c := process.DefaultConfig()
	changed := false
	sizes := []struct {
		key string
		dst *runner.Size
	}{
		{"output-limit", &c.OutputLimit},
		{"stack-limit", &c.StackLimit},
	}
	for _, s := range sizes {
		val := v.GetString(s.key)
		if val == "" {
			continue
		}
		if err := s.dst.Set(val); err != nil {
			return fmt.Errorf("--%s: %w", s.key, err)
		}
		changed = true
	}
	if names := v.GetStringSlice("deny-syscall"); len(names) > 0 {
		c.DeniedSyscalls = names
		changed = true
	}
	if !changed {
		return nil
	}
	return r.SetConfig(c)
}

func applyLimits(r *river.River, v *viper.Viper) error {
	limits := []struct {
		key string
		set func(int64) error
	}{
		{"time-limit", r.SetTimeLimit},
		{"cpu-time-limit", r.SetCPUTimeLimit},
		{"memory-limit", r.SetMemoryLimit},
	}
	for _, l := range limits {
		val := v.GetInt64(l.key)
		if val == 0 {
			continue
		}
		if err := l.set(val); err != nil {
			return fmt.Errorf("--%s: %w", l.key, err)
		}
	}
	return nil
}

// commandLine turns the arguments back into a command line, quoting
// every word that would otherwise be split or interpreted
func commandLine(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quote(a)
	}
	return strings.Join(quoted, " ")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\r'\"\\#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// writeOutcome prints "kind time memory exit" or the yaml document.
// A signaled program reports 128+signal as its exit like a shell does.
func writeOutcome(w io.Writer, format string, o *river.RunOutcome) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(o)
	}
	code, ok := o.ExitCode()
	if !ok {
		sig, _ := o.Signal()
		code = 128 + int(sig)
	}
	_, err := fmt.Fprintf(w, "%s %d %d %d\n", o.Kind(), o.TimeUsed(), o.MemoryUsed(), code)
	return err
}

// writeCaptured adds the captured stderr to the outcome: after the text
// line on errOut, or as stderr and stderr_truncated in the yaml document
func writeCaptured(w, errOut io.Writer, format string, o *river.RunOutcome, b *pipe.Buffer) error {
	if format != "yaml" {
		if err := writeOutcome(w, format, o); err != nil {
			return err
		}
		if _, err := errOut.Write(b.Bytes()); err != nil {
			return err
		}
		if b.Truncated() {
			_, err := fmt.Fprintf(errOut, "\n[stderr truncated at %v]\n", runner.Size(b.Max))
			return err
		}
		return nil
	}

	var doc yaml.Node
	if err := doc.Encode(o); err != nil {
		return err
	}
	doc.Content = append(doc.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "stderr"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: string(b.Bytes())},
		&yaml.Node{Kind: yaml.ScalarNode, Value: "stderr_truncated"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b.Truncated())},
	)
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(&doc)
}

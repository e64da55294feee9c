// Package errs defines the structured error taxonomy surfaced by the
// consensus pipeline. Each kind carries the parameters that were in effect
// at the point of failure, so a post-mortem can be done from the error
// value alone, without re-running the pipeline with more logging enabled.
//
// The taxonomy mirrors the failure modes named in the pipeline design:
// reader/writer faults, the equal-length precondition on UMI-stripped
// mates, the external clusterer's spawn/IO/protocol/exit faults, and
// configuration mistakes caught before any record is read.
package errs

import (
	"fmt"
	"strings"
)

// ReaderError reports a failure opening or parsing an input stream.
type ReaderError struct {
	Filename string
	Err      error
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("reader error: %s: %v", e.Filename, e.Err)
}

func (e *ReaderError) Unwrap() error { return e.Err }

// WriterError reports a failure creating or writing an output stream.
type WriterError struct {
	Filename string
	Err      error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("writer error: %s: %v", e.Filename, e.Err)
}

func (e *WriterError) Unwrap() error { return e.Err }

// LengthMismatchError reports a paired record whose UMI-stripped mates (or
// whose aligned duplicate-group members) do not share the length required
// to build a probe string or a consensus column.
type LengthMismatchError struct {
	Index      int
	Context    string
	ForwardLen int
	ReverseLen int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch at index %d (%s): forward=%d reverse=%d",
		e.Index, e.Context, e.ForwardLen, e.ReverseLen)
}

// ClustererSpawnError reports a failure launching the external clusterer
// process.
type ClustererSpawnError struct {
	Path string
	Args []string
	Err  error
}

func (e *ClustererSpawnError) Error() string {
	return fmt.Sprintf("failed to spawn clusterer %s %v: %v", e.Path, e.Args, e.Err)
}

func (e *ClustererSpawnError) Unwrap() error { return e.Err }

// ClustererIOError reports a failure writing candidates to, or reading
// results from, the clusterer's pipes.
type ClustererIOError struct {
	Err error
}

func (e *ClustererIOError) Error() string {
	return fmt.Sprintf("clusterer I/O error: %v", e.Err)
}

func (e *ClustererIOError) Unwrap() error { return e.Err }

// ClustererProtocolError reports output from the clusterer that cannot be
// reconciled with the documented wire protocol: a malformed line, an
// out-of-range member index, an index reported in more than one cluster,
// or output that leaves some input index uncovered. A member farther from
// its representative than requested is only logged, not reported here.
type ClustererProtocolError struct {
	Reason string
	Line   string
}

func (e *ClustererProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("clusterer protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("clusterer protocol error: %s (line: %q)", e.Reason, e.Line)
}

// ClustererExitError reports a nonzero exit from the clusterer process,
// with its captured stderr attached.
type ClustererExitError struct {
	Err    error
	Stderr string
}

func (e *ClustererExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("clusterer exited with error: %v", e.Err)
	}
	return fmt.Sprintf("clusterer exited with error: %v: %s", e.Err, stderr)
}

func (e *ClustererExitError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration value or combination of
// values, mostly caught before any input record is read. It is also
// returned mid-run for input the configuration cannot handle: a read
// shorter than the UMI length, or a base outside the accepted alphabet.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Param is one named value in a PipelineError's parameter dump.
type Param struct {
	Key   string
	Value interface{}
}

// P constructs a Param.
func P(key string, value interface{}) Param {
	return Param{Key: key, Value: value}
}

// PipelineError wraps the error that terminated a pipeline run together
// with the full set of parameters the run was configured with, for
// post-mortem diagnosis. It is attached once, at the top of the call
// stack, by the orchestrator.
type PipelineError struct {
	Err    error
	Params []Param
}

// Wrap attaches a parameter dump to err, returning nil if err is nil.
func Wrap(err error, params ...Param) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Err: err, Params: params}
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString("pipeline did not finish correctly: ")
	b.WriteString(e.Err.Error())
	for _, p := range e.Params {
		fmt.Fprintf(&b, "\n  %s: %v", p.Key, p.Value)
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error { return e.Err }

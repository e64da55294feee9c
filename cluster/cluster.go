// Package cluster drives the external Levenshtein-distance clusterer used
// at both stages of the duplicate-collapsing pipeline: first to group reads
// by UMI, then to group UMI-cluster members by concatenated insert
// sequence. The clusterer is a child process; this package owns its pipes
// for the duration of a single clustering call and never reuses the
// process across calls.
package cluster

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio/editdistance"
	"github.com/grailbio/bio/errs"
)

// Config names the clusterer binary and how hard it is allowed to work.
type Config struct {
	// Path is the clusterer executable, found via $PATH if it contains no
	// slash.
	Path string
	// Threads is the degree of parallelism requested from the clusterer
	// itself (independent of any parallelism in the orchestrator).
	Threads int
}

// Cluster is one output cluster: a representative string and the 0-based
// indices, into the candidates slice passed to Run, of its members.
type Cluster struct {
	Representative string
	Members        []int
}

// Run clusters candidates by edit distance, launching the clusterer
// configured by cfg. distance is the maximum edit distance within a
// cluster. Candidates are sent to the child in order; Run retains the
// 1-based indices the child reports, translated to the 0-based indices
// used throughout the rest of the pipeline.
//
// Run returns (nil, nil) for empty input without spawning a child.
func Run(ctx context.Context, cfg Config, distance int, candidates []string) ([]Cluster, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	args := []string{
		"--message-passing",
		"--seq-id",
		"-d", strconv.Itoa(distance),
		"-t", strconv.Itoa(cfg.Threads),
	}
	cmd := exec.CommandContext(ctx, cfg.Path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errs.ClustererSpawnError{Path: cfg.Path, Args: args, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errs.ClustererSpawnError{Path: cfg.Path, Args: args, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &errs.ClustererSpawnError{Path: cfg.Path, Args: args, Err: err}
	}
	log.Debug.Printf("cluster: started %s %v for %d candidates", cfg.Path, args, len(candidates))

	ioErr := errors.Once{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := bufio.NewWriter(stdin)
		for _, c := range candidates {
			if _, err := w.WriteString(c); err != nil {
				ioErr.Set(err)
				break
			}
			if err := w.WriteByte('\n'); err != nil {
				ioErr.Set(err)
				break
			}
		}
		if err := w.Flush(); err != nil {
			ioErr.Set(err)
		}
		ioErr.Set(stdin.Close())
	}()

	clusters, parseErr := readClusters(stdout, candidates, distance)

	wg.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		return nil, &errs.ClustererExitError{Err: waitErr, Stderr: stderr.String()}
	}
	if err := ioErr.Err(); err != nil {
		return nil, &errs.ClustererIOError{Err: err}
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return clusters, nil
}

func readClusters(r io.Reader, candidates []string, distance int) ([]Cluster, error) {
	n := len(candidates)
	seen := make([]bool, n)
	var clusters []Cluster

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		rep, members, err := parseLine(line, n)
		if err != nil {
			return nil, err
		}
		for _, idx := range members {
			if seen[idx] {
				return nil, &errs.ClustererProtocolError{Reason: "index reported in more than one cluster", Line: line}
			}
			seen[idx] = true
		}
		verifyMembership(rep, members, candidates, distance)
		clusters = append(clusters, Cluster{Representative: rep, Members: members})
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.ClustererIOError{Err: err}
	}
	for _, ok := range seen {
		if !ok {
			return nil, &errs.ClustererProtocolError{Reason: "clusterer output did not cover every input index"}
		}
	}
	return clusters, nil
}

func parseLine(line string, n int) (representative string, members []int, err error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return "", nil, &errs.ClustererProtocolError{Reason: "expected 3 tab-separated fields", Line: line}
	}
	representative = fields[0]
	size, convErr := strconv.Atoi(fields[1])
	if convErr != nil || size < 1 {
		return "", nil, &errs.ClustererProtocolError{Reason: "invalid cluster size field", Line: line}
	}
	idxFields := strings.Split(fields[2], ",")
	if len(idxFields) != size {
		return "", nil, &errs.ClustererProtocolError{Reason: "cluster size does not match index list length", Line: line}
	}
	members = make([]int, len(idxFields))
	for i, s := range idxFields {
		oneBased, convErr := strconv.Atoi(s)
		if convErr != nil || oneBased < 1 || oneBased > n {
			return "", nil, &errs.ClustererProtocolError{Reason: "member index out of range", Line: line}
		}
		members[i] = oneBased - 1
	}
	return representative, members, nil
}

// verifyMembership sanity-checks, where it can, that a reported member is
// actually within distance of the cluster's representative. Candidates and
// representatives that the clusterer is free to shorten or pad (it isn't,
// in this pipeline, since UMIs and probes are of fixed length within a
// run) are skipped rather than flagged.
func verifyMembership(representative string, members []int, candidates []string, distance int) {
	for _, idx := range members {
		candidate := candidates[idx]
		if len(candidate) != len(representative) {
			continue
		}
		d, ok := editdistance.Distance(representative, candidate, "", "")
		if ok && d > distance {
			log.Debug.Printf("cluster: representative %q and member %q are %d apart, more than requested distance %d",
				representative, candidate, d, distance)
		}
	}
}

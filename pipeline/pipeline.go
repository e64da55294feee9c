// Package pipeline orchestrates the full duplicate-collapsing run: it
// reads both mates, strips the UMI, performs the two-stage clustering,
// dispatches each resulting duplicate group to the overlap or non-overlap
// consensus path, and writes the consensus records in deterministic
// order.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bio/cluster"
	"github.com/grailbio/bio/consensus"
	"github.com/grailbio/bio/digest"
	"github.com/grailbio/bio/encoding/fastq"
	"github.com/grailbio/bio/errs"
	"github.com/grailbio/bio/overlap"
	"github.com/grailbio/bio/readname"
)

// Config names every tunable named in the external interface: UMI
// geometry, clustering distances, the overlap priors (when in overlap
// mode), and the clusterer child process.
type Config struct {
	UMILen           int
	SeqDist          int
	UMIDist          int
	ReverseUMI       bool
	VerboseReadNames bool

	// InsertSize and StdDev select overlap mode when both are >= 0, and
	// non-overlap mode when both are negative. Any other combination is a
	// ConfigError.
	InsertSize int
	StdDev     int

	MinMatchFraction float64

	ClustererPath string
	Threads       int

	// DigestOutput, if non-empty, names a path to write a per-output-stream
	// checksum report to, so that two runs configured identically can be
	// compared for byte-identical output without diffing the FASTQ files
	// themselves.
	DigestOutput string
}

// IO names the input and output FASTQ paths. Fq3Out is used only in
// overlap mode, for the merged consensus stream.
type IO struct {
	Fq1In, Fq2In           string
	Fq1Out, Fq2Out, Fq3Out string
}

func (c Config) overlapMode() (bool, error) {
	hasInsertSize := c.InsertSize >= 0
	hasStdDev := c.StdDev >= 0
	if hasInsertSize != hasStdDev {
		return false, &errs.ConfigError{Reason: "insert_size and std_dev must both be provided or both be absent"}
	}
	return hasInsertSize, nil
}

// Params dumps the configuration for post-mortem diagnosis, the way the
// pipeline's parameter summary names every setting in effect at the time
// of a failure.
func (c Config) Params() []errs.Param {
	params := []errs.Param{
		errs.P("umi_len", c.UMILen),
		errs.P("seq_dist", c.SeqDist),
		errs.P("umi_dist", c.UMIDist),
		errs.P("reverse_umi", c.ReverseUMI),
		errs.P("verbose_read_names", c.VerboseReadNames),
	}
	if overlap, _ := c.overlapMode(); overlap {
		params = append(params, errs.P("insert_size", c.InsertSize), errs.P("std_dev", c.StdDev),
			errs.P("min_match_fraction", c.MinMatchFraction))
	} else {
		params = append(params, errs.P("mode", "non-overlap"))
	}
	params = append(params,
		errs.P("clusterer_path", c.ClustererPath),
		errs.P("threads", c.Threads),
		errs.P("digest_output", c.DigestOutput),
	)
	return params
}

// Clusterer clusters candidates by edit distance. It is a narrow seam
// over cluster.Run so tests can exercise the orchestrator without an
// external clusterer binary.
type Clusterer func(ctx context.Context, distance int, candidates []string) ([]cluster.Cluster, error)

func defaultClusterer(cfg Config) Clusterer {
	return func(ctx context.Context, distance int, candidates []string) ([]cluster.Cluster, error) {
		return cluster.Run(ctx, cluster.Config{Path: cfg.ClustererPath, Threads: cfg.Threads}, distance, candidates)
	}
}

// pairRecord is a UMI-stripped read pair, keyed by its stable input
// index: umi is the extracted prefix, fwdSeq/revSeq/fwdQual/revQual are
// the stripped wire-encoded (PHRED+33) sequence and quality strings, and
// probe is their concatenation used for sequence-level clustering.
type pairRecord struct {
	umi                              string
	fwdSeq, fwdQual, revSeq, revQual string
	probe                            string
}

// Run executes one pipeline invocation end to end. Any error returned is
// wrapped in an *errs.PipelineError carrying cfg's full parameter dump.
func Run(ctx context.Context, cfg Config, streams IO) (err error) {
	defer func() { err = errs.Wrap(err, cfg.Params()...) }()
	return run(ctx, cfg, streams, defaultClusterer(cfg))
}

func run(ctx context.Context, cfg Config, streams IO, clusterFn Clusterer) error {
	if cfg.UMILen < 0 {
		return &errs.ConfigError{Reason: "umi_len must not be negative"}
	}
	if cfg.SeqDist < 0 {
		return &errs.ConfigError{Reason: "seq_dist must not be negative"}
	}
	if cfg.UMIDist < 0 {
		return &errs.ConfigError{Reason: "umi_dist must not be negative"}
	}
	overlapMode, err := cfg.overlapMode()
	if err != nil {
		return err
	}
	if overlapMode && streams.Fq3Out == "" {
		return &errs.ConfigError{Reason: "overlap mode requires a third output path for merged reads"}
	}
	if !overlapMode && streams.Fq3Out != "" {
		return &errs.ConfigError{Reason: "a third output path is only meaningful in overlap mode"}
	}

	if err := fastq.CheckCompressionGroup("input", streams.Fq1In, streams.Fq2In); err != nil {
		return err
	}
	outPaths := []string{streams.Fq1Out, streams.Fq2Out}
	if overlapMode {
		outPaths = append(outPaths, streams.Fq3Out)
	}
	if err := fastq.CheckCompressionGroup("output", outPaths...); err != nil {
		return err
	}

	pairs, err := readPairs(ctx, cfg, streams)
	if err != nil {
		return err
	}
	log.Debug.Printf("pipeline: read %d pairs", len(pairs))

	groups, err := clusterPairs(ctx, cfg, clusterFn, pairs)
	if err != nil {
		return err
	}
	log.Debug.Printf("pipeline: formed %d duplicate groups", len(groups))

	return writeGroups(ctx, cfg, streams, overlapMode, pairs, groups)
}

func readPairs(ctx context.Context, cfg Config, streams IO) ([]pairRecord, error) {
	r1, err := fastq.OpenInput(ctx, streams.Fq1In)
	if err != nil {
		return nil, err
	}
	defer r1.Close()
	r2, err := fastq.OpenInput(ctx, streams.Fq2In)
	if err != nil {
		return nil, err
	}
	defer r2.Close()

	scanner := fastq.NewPairScanner(r1, r2)
	var pairs []pairRecord
	var fwd, rev fastq.Record
	for scanner.Scan(&fwd, &rev) {
		p, err := stripUMI(cfg, fwd, rev, len(pairs))
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.ReaderError{Filename: streams.Fq1In + ", " + streams.Fq2In, Err: err}
	}
	return pairs, nil
}

func stripUMI(cfg Config, fwd, rev fastq.Record, index int) (pairRecord, error) {
	var p pairRecord
	if cfg.ReverseUMI {
		if len(rev.Seq) < cfg.UMILen {
			return pairRecord{}, &errs.ConfigError{Reason: fmt.Sprintf("reverse read at index %d is shorter than umi_len", index)}
		}
		p.umi = rev.Seq[:cfg.UMILen]
		p.revSeq, p.revQual = rev.Seq[cfg.UMILen:], rev.Qual[cfg.UMILen:]
		p.fwdSeq, p.fwdQual = fwd.Seq, fwd.Qual
	} else {
		if len(fwd.Seq) < cfg.UMILen {
			return pairRecord{}, &errs.ConfigError{Reason: fmt.Sprintf("forward read at index %d is shorter than umi_len", index)}
		}
		p.umi = fwd.Seq[:cfg.UMILen]
		p.fwdSeq, p.fwdQual = fwd.Seq[cfg.UMILen:], fwd.Qual[cfg.UMILen:]
		p.revSeq, p.revQual = rev.Seq, rev.Qual
	}
	if len(p.fwdSeq) != len(p.revSeq) {
		return pairRecord{}, &errs.LengthMismatchError{
			Index: index, Context: "umi-stripped mates",
			ForwardLen: len(p.fwdSeq), ReverseLen: len(p.revSeq),
		}
	}
	p.probe = p.fwdSeq + p.revSeq
	return p, nil
}

// group is one sequence cluster, fully resolved to global input indices.
type group struct {
	umiRep  string
	seqRep  string
	indices []int
}

func clusterPairs(ctx context.Context, cfg Config, clusterFn Clusterer, pairs []pairRecord) ([]group, error) {
	umis := make([]string, len(pairs))
	for i, p := range pairs {
		umis[i] = p.umi
	}
	umiClusters, err := clusterFn(ctx, cfg.UMIDist, umis)
	if err != nil {
		return nil, err
	}

	var groups []group
	for _, uc := range umiClusters {
		probes := make([]string, len(uc.Members))
		for i, globalIdx := range uc.Members {
			probes[i] = pairs[globalIdx].probe
		}
		seqClusters, err := clusterFn(ctx, cfg.SeqDist, probes)
		if err != nil {
			return nil, err
		}
		for _, sc := range seqClusters {
			indices := make([]int, len(sc.Members))
			for i, localIdx := range sc.Members {
				indices[i] = uc.Members[localIdx]
			}
			groups = append(groups, group{umiRep: uc.Representative, seqRep: sc.Representative, indices: indices})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].umiRep != groups[j].umiRep {
			return groups[i].umiRep < groups[j].umiRep
		}
		return groups[i].seqRep < groups[j].seqRep
	})
	return groups, nil
}

func writeGroups(ctx context.Context, cfg Config, streams IO, overlapMode bool, pairs []pairRecord, groups []group) error {
	w1raw, err := fastq.CreateOutput(ctx, streams.Fq1Out)
	if err != nil {
		return err
	}
	defer w1raw.Close()
	w2raw, err := fastq.CreateOutput(ctx, streams.Fq2Out)
	if err != nil {
		return err
	}
	defer w2raw.Close()

	dw1 := digest.NewWriter(w1raw)
	dw2 := digest.NewWriter(w2raw)
	writer1 := fastq.NewWriter(dw1)
	writer2 := fastq.NewWriter(dw2)

	var writer3 *fastq.Writer
	var dw3 *digest.Writer
	if overlapMode {
		var w3raw io.WriteCloser
		w3raw, err = fastq.CreateOutput(ctx, streams.Fq3Out)
		if err != nil {
			return err
		}
		defer w3raw.Close()
		dw3 = digest.NewWriter(w3raw)
		writer3 = fastq.NewWriter(dw3)
	}

	for _, g := range groups {
		if overlapMode {
			if err := emitOverlap(cfg, streams, pairs, g.indices, writer1, writer2, writer3); err != nil {
				return err
			}
		} else {
			if err := emitNonOverlap(cfg, streams, pairs, g.indices, writer1, writer2); err != nil {
				return err
			}
		}
	}

	if cfg.DigestOutput != "" {
		return writeDigestReport(ctx, cfg, streams, dw1, dw2, dw3)
	}
	return nil
}

// writeDigestReport records a checksum per output stream, so that two runs
// configured identically can be compared for byte-identical output without
// diffing the FASTQ files themselves.
func writeDigestReport(ctx context.Context, cfg Config, streams IO, dw1, dw2, dw3 *digest.Writer) error {
	report, err := fastq.CreateOutput(ctx, cfg.DigestOutput)
	if err != nil {
		return err
	}
	defer report.Close()

	lines := fmt.Sprintf("%s\t%x\n%s\t%x\n", streams.Fq1Out, dw1.Sum(), streams.Fq2Out, dw2.Sum())
	if dw3 != nil {
		lines += fmt.Sprintf("%s\t%x\n", streams.Fq3Out, dw3.Sum())
	}
	if _, err := io.WriteString(report, lines); err != nil {
		return &errs.WriterError{Filename: cfg.DigestOutput, Err: err}
	}
	return nil
}

func emitNonOverlap(cfg Config, streams IO, pairs []pairRecord, indices []int, w1, w2 *fastq.Writer) error {
	fwdSeq, fwdQual, err := callSide(pairs, indices, func(p pairRecord) (string, string) { return p.fwdSeq, p.fwdQual })
	if err != nil {
		return err
	}
	revSeq, revQual, err := callSide(pairs, indices, func(p pairRecord) (string, string) { return p.revSeq, p.revQual })
	if err != nil {
		return err
	}
	name := readname.Format(indices, cfg.VerboseReadNames)
	if err := w1.Write(&fastq.Record{ID: "@" + name, Seq: fwdSeq, Plus: "+", Qual: consensus.EncodeQualString(fwdQual)}); err != nil {
		return &errs.WriterError{Filename: streams.Fq1Out, Err: err}
	}
	if err := w2.Write(&fastq.Record{ID: "@" + name, Seq: revSeq, Plus: "+", Qual: consensus.EncodeQualString(revQual)}); err != nil {
		return &errs.WriterError{Filename: streams.Fq2Out, Err: err}
	}
	return nil
}

func emitOverlap(cfg Config, streams IO, pairs []pairRecord, indices []int, w1, w2, w3 *fastq.Writer) error {
	members := make([]overlap.Member, len(indices))
	for i, idx := range indices {
		p := pairs[idx]
		members[i] = overlap.Member{
			Fwd: overlap.Read{Seq: p.fwdSeq, Qual: consensus.DecodeQualString(p.fwdQual)},
			Rev: overlap.Read{Seq: p.revSeq, Qual: consensus.DecodeQualString(p.revQual)},
		}
	}
	ocfg := overlap.Config{InsertSize: cfg.InsertSize, StdDev: cfg.StdDev, MinMatchFraction: cfg.MinMatchFraction}
	result, ok, err := overlap.Try(ocfg, members)
	if err != nil {
		return err
	}
	if !ok {
		return emitNonOverlap(cfg, streams, pairs, indices, w1, w2)
	}
	name := readname.Format(indices, cfg.VerboseReadNames)
	rec := &fastq.Record{ID: "@" + name, Seq: result.Seq, Plus: "+", Qual: consensus.EncodeQualString(result.Qual)}
	if err := w3.Write(rec); err != nil {
		return &errs.WriterError{Filename: streams.Fq3Out, Err: err}
	}
	return nil
}

// callSide computes the per-base consensus for one mate (forward or
// reverse) across a duplicate group.
func callSide(pairs []pairRecord, indices []int, side func(pairRecord) (seq, qual string)) (string, []byte, error) {
	firstSeq, _ := side(pairs[indices[0]])
	n := len(firstSeq)
	outSeq := make([]byte, n)
	outQual := make([]byte, n)
	obs := make([]consensus.Observation, len(indices))
	for j := 0; j < n; j++ {
		for i, idx := range indices {
			seq, qual := side(pairs[idx])
			if len(seq) != n {
				return "", nil, &errs.LengthMismatchError{Index: idx, Context: "duplicate group member", ForwardLen: n, ReverseLen: len(seq)}
			}
			obs[i] = consensus.Observation{Base: seq[j], Qual: consensus.DecodePhred33(qual[j])}
		}
		base, q, err := consensus.Call(obs)
		if err != nil {
			return "", nil, err
		}
		outSeq[j] = base
		outQual[j] = q
	}
	return string(outSeq), outQual, nil
}

/*
  bio-call-consensus-reads collapses PCR duplicates in paired-end FASTQ
  data into consensus reads. Duplicates are found by clustering first on
  a leading UMI, then on the concatenated insert sequence within each
  UMI cluster; every member of a resulting cluster is combined, base by
  base, into a single consensus read using a MAP base-calling model. In
  overlap mode, clusters whose mates overlap by enough to pass a
  match-fraction threshold are merged into one spliced read instead of a
  forward/reverse pair.
*/
package main

import (
	"flag"
	"runtime"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio/overlap"
	"github.com/grailbio/bio/pipeline"
)

var (
	fq1In  = flag.String("fastq1-input", "", "Input FASTQ filename, forward mates")
	fq2In  = flag.String("fastq2-input", "", "Input FASTQ filename, reverse mates")
	fq1Out = flag.String("fastq1-output", "", "Output FASTQ filename, forward (or mate1) consensus reads")
	fq2Out = flag.String("fastq2-output", "", "Output FASTQ filename, reverse (or mate2) consensus reads")
	fq3Out = flag.String("fastq3-output", "", "Output FASTQ filename for overlap-merged consensus reads; required when --insert-size and --std-dev are set")

	umiLen           = flag.Int("umi-len", 0, "Length in bases of the UMI prefix to strip from one mate before clustering")
	reverseUmi       = flag.Bool("reverse-umi", false, "Strip the UMI from the reverse mate instead of the forward mate")
	seqDist          = flag.Int("seq-dist", 1, "Maximum edit distance within a sequence cluster")
	umiDist          = flag.Int("umi-dist", 1, "Maximum edit distance within a UMI cluster")
	verboseReadNames = flag.Bool("verbose-read-names", false, "Emit verbose consensus read names including the full member index list")

	insertSize       = flag.Int("insert-size", -1, "Expected insert size; set together with --std-dev to enable overlap mode")
	stdDev           = flag.Int("std-dev", -1, "Standard deviation of the insert size; set together with --insert-size to enable overlap mode")
	minMatchFraction = flag.Float64("min-match-fraction", overlap.DefaultMinMatchFraction, "Minimum fraction of matching bases required to accept an overlap merge")

	clustererPath = flag.String("clusterer-path", "starcode", "Path to the external sequence clusterer binary, resolved via $PATH if it contains no slash")
	threads       = flag.Int("threads", runtime.NumCPU(), "Degree of parallelism requested from the clusterer")

	digestOutput = flag.String("digest-output", "", "Optional path to write a per-output-stream checksum report, for comparing two runs without diffing FASTQ files")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	cfg := pipeline.Config{
		UMILen:           *umiLen,
		SeqDist:          *seqDist,
		UMIDist:          *umiDist,
		ReverseUMI:       *reverseUmi,
		VerboseReadNames: *verboseReadNames,
		InsertSize:       *insertSize,
		StdDev:           *stdDev,
		MinMatchFraction: *minMatchFraction,
		ClustererPath:    *clustererPath,
		Threads:          *threads,
		DigestOutput:     *digestOutput,
	}
	streams := pipeline.IO{
		Fq1In: *fq1In, Fq2In: *fq2In,
		Fq1Out: *fq1Out, Fq2Out: *fq2Out, Fq3Out: *fq3Out,
	}

	ctx := vcontext.Background()
	if err := pipeline.Run(ctx, cfg, streams); err != nil {
		log.Fatalf("%s", err)
	}
	log.Debug.Printf("exiting")
}

package pipeline

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/grailbio/bio/cluster"
	"github.com/grailbio/bio/consensus"
	"github.com/grailbio/bio/encoding/fastq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exactClusterer groups candidates that are byte-identical, the simplest
// possible stand-in for a real edit-distance clusterer with distance 0.
func exactClusterer(ctx context.Context, distance int, candidates []string) ([]cluster.Cluster, error) {
	byValue := map[string][]int{}
	var order []string
	for i, c := range candidates {
		if _, ok := byValue[c]; !ok {
			order = append(order, c)
		}
		byValue[c] = append(byValue[c], i)
	}
	clusters := make([]cluster.Cluster, 0, len(order))
	for _, v := range order {
		members := byValue[v]
		sort.Ints(members)
		clusters = append(clusters, cluster.Cluster{Representative: v, Members: members})
	}
	return clusters, nil
}

func baseConfig() Config {
	return Config{
		UMILen:           3,
		SeqDist:          0,
		UMIDist:          0,
		InsertSize:       -1,
		StdDev:           -1,
		MinMatchFraction: overlapDefaultFraction,
	}
}

const overlapDefaultFraction = 0.8

func TestOverlapModeValidation(t *testing.T) {
	cfg := baseConfig()
	overlap, err := cfg.overlapMode()
	require.NoError(t, err)
	assert.False(t, overlap)

	cfg.InsertSize = 200
	_, err = cfg.overlapMode()
	assert.Error(t, err)

	cfg.StdDev = 20
	overlap, err = cfg.overlapMode()
	require.NoError(t, err)
	assert.True(t, overlap)
}

func TestStripUMIForward(t *testing.T) {
	cfg := baseConfig()
	fwd := fastqRecord("@r1", "AAATTTCCC", "IIIIIIIII")
	rev := fastqRecord("@r1", "GGGGGG", "IIIIII")
	p, err := stripUMI(cfg, fwd, rev, 0)
	require.NoError(t, err)
	assert.Equal(t, "AAA", p.umi)
	assert.Equal(t, "TTTCCC", p.fwdSeq)
	assert.Equal(t, "GGGGGG", p.revSeq)
}

func TestStripUMIReverse(t *testing.T) {
	cfg := baseConfig()
	cfg.ReverseUMI = true
	fwd := fastqRecord("@r1", "AAAAAA", "IIIIII")
	rev := fastqRecord("@r1", "GGGTTTCCC", "IIIIIIIII")
	p, err := stripUMI(cfg, fwd, rev, 0)
	require.NoError(t, err)
	assert.Equal(t, "GGG", p.umi)
	assert.Equal(t, "TTTCCC", p.revSeq)
	assert.Equal(t, "AAAAAA", p.fwdSeq)
}

func TestStripUMILengthMismatch(t *testing.T) {
	cfg := baseConfig()
	fwd := fastqRecord("@r1", "AAATTTCCC", "IIIIIIIII")
	rev := fastqRecord("@r1", "GGGGGGG", "IIIIIII")
	_, err := stripUMI(cfg, fwd, rev, 0)
	assert.Error(t, err)
}

func TestRunNonOverlapEndToEnd(t *testing.T) {
	dir, err := ioutil.TempDir("", "pipeline-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	// Two pairs share the UMI "AAA" and, once stripped, an identical
	// insert, so they collapse to a single duplicate group.
	fq1In := filepath.Join(dir, "r1.fastq")
	fq2In := filepath.Join(dir, "r2.fastq")
	writeFastq(t, fq1In, []string{"@pair0", "@pair1"}, []string{"AAATTTCCC", "AAATTTCCC"}, []string{"IIIIIIIII", "IIIIIIIII"})
	writeFastq(t, fq2In, []string{"@pair0", "@pair1"}, []string{"GGGGGG", "GGGGGG"}, []string{"IIIIII", "IIIIII"})

	cfg := baseConfig()
	streams := IO{
		Fq1In: fq1In, Fq2In: fq2In,
		Fq1Out: filepath.Join(dir, "out1.fastq"),
		Fq2Out: filepath.Join(dir, "out2.fastq"),
	}

	err = run(context.Background(), cfg, streams, exactClusterer)
	require.NoError(t, err)

	out1, err := ioutil.ReadFile(streams.Fq1Out)
	require.NoError(t, err)
	out2, err := ioutil.ReadFile(streams.Fq2Out)
	require.NoError(t, err)

	assert.Contains(t, string(out1), "TTTCCC")
	assert.Contains(t, string(out2), "GGGGGG")
	assert.Contains(t, string(out1), "consensus-")
}

func TestRunRejectsMismatchedInputCompression(t *testing.T) {
	cfg := baseConfig()
	streams := IO{Fq1In: "a.fastq.gz", Fq2In: "b.fastq", Fq1Out: "o1.fastq", Fq2Out: "o2.fastq"}
	err := run(context.Background(), cfg, streams, exactClusterer)
	assert.Error(t, err)
}

func TestRunRejectsOverlapModeWithoutThirdOutput(t *testing.T) {
	cfg := baseConfig()
	cfg.InsertSize, cfg.StdDev = 100, 10
	streams := IO{Fq1In: "a.fastq", Fq2In: "b.fastq", Fq1Out: "o1.fastq", Fq2Out: "o2.fastq"}
	err := run(context.Background(), cfg, streams, exactClusterer)
	assert.Error(t, err)
}

func TestCallSideAgreement(t *testing.T) {
	pairs := []pairRecord{
		{fwdSeq: "ACGT", fwdQual: string([]byte{73, 73, 73, 73})},
		{fwdSeq: "ACGT", fwdQual: string([]byte{73, 73, 73, 73})},
	}
	seq, qual, err := callSide(pairs, []int{0, 1}, func(p pairRecord) (string, string) { return p.fwdSeq, p.fwdQual })
	require.NoError(t, err)
	assert.Equal(t, "ACGT", seq)
	assert.Equal(t, consensus.QualMax, int(qual[0]))
}

func fastqRecord(id, seq, qual string) fastq.Record {
	return fastq.Record{ID: id, Seq: seq, Plus: "+", Qual: qual}
}

func writeFastq(t *testing.T, path string, ids, seqs, quals []string) {
	var b strings.Builder
	for i := range ids {
		b.WriteString(ids[i])
		b.WriteByte('\n')
		b.WriteString(seqs[i])
		b.WriteString("\n+\n")
		b.WriteString(quals[i])
		b.WriteByte('\n')
	}
	require.NoError(t, ioutil.WriteFile(path, []byte(b.String()), 0644))
}

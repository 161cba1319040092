package consensus_test

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consensuskit/bio/pileup/consensus"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// writeBAM writes recs to path, plus a .bai if index is set.
func writeBAM(t *testing.T, path string, header *sam.Header, recs []*sam.Record, index bool) {
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	if !index {
		return
	}

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	br, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	var idx bam.Index
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, idx.Add(r, br.LastChunk()))
	}
	require.NoError(t, br.Close())
	bai, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(bai, &idx))
	require.NoError(t, bai.Close())
}

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

func readFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type runFixture struct {
	opts   consensus.Opts
	outDir string
}

// newRunFixture lays out a reference, a two-region BED and a BAM folder
// under tmpDir.  Sample "s1" has 15 reads of A over geneA (+) and 12 reads of
// G over geneB (-).
func newRunFixture(t *testing.T, tmpDir string) runFixture {
	header, chr1 := newHeader(t)
	bamDir := filepath.Join(tmpDir, "bams")
	require.NoError(t, os.MkdirAll(bamDir, 0755))
	recs := append(newReads(t, chr1, 15, 100, "AAAAAAAAAA"), newReads(t, chr1, 12, 150, "GGGGGGGGGG")...)
	writeBAM(t, filepath.Join(bamDir, "s1.bam"), header, recs, true)
	writeFile(t, filepath.Join(bamDir, "notes.txt"), "not an alignment\n")

	refPath := filepath.Join(tmpDir, "ref.fa")
	writeFile(t, refPath, ">chr1\n"+strings.Repeat("ACGT", 50)+"\n")
	bedPath := filepath.Join(tmpDir, "regions.bed")
	writeFile(t, bedPath, "chr1\t100\t110\tgeneA\t+\nchr1\t150\t160\tgeneB\t-\n")

	opts := consensus.DefaultOpts
	opts.BedPath = bedPath
	opts.ReferencePath = refPath
	opts.BAMDir = bamDir
	opts.OutputDir = filepath.Join(tmpDir, "out")
	return runFixture{opts: opts, outDir: opts.OutputDir}
}

func TestRun(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := vcontext.Background()
	f := newRunFixture(t, tmpDir)

	// An unreadable sample is skipped, and sorts before s1.
	writeFile(t, filepath.Join(f.opts.BAMDir, "s0.bam"), "corrupt")

	assert.NoError(t, consensus.Run(ctx, &f.opts))
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_coverage.tsv")),
		"Gene\tSample\tCoverage\tRetained\n"+
			"geneA\ts1\t15.00\tYes\n"+
			"\n"+
			"geneA\tPromedio\t15.00\n")
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_F.fasta")), ">s1\nAAAAAAAAAA\n")
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneB_coverage.tsv")),
		"Gene\tSample\tCoverage\tRetained\n"+
			"geneB\ts1\t12.00\tYes\n"+
			"\n"+
			"geneB\tPromedio\t12.00\n")
	// Minus-strand sequences go to the _R file as read off the reference.
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneB_R.fasta")), ">s1\nGGGGGGGGGG\n")
	_, err := os.Stat(filepath.Join(f.outDir, "geneB_F.fasta"))
	expect.True(t, os.IsNotExist(err), "err: %v", err)
	_, err = os.Stat(filepath.Join(f.outDir, "geneA_R.fasta"))
	expect.True(t, os.IsNotExist(err), "err: %v", err)

	// FASTA output accumulates across runs; coverage tables are rewritten.
	assert.NoError(t, consensus.Run(ctx, &f.opts))
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_F.fasta")), ">s1\nAAAAAAAAAA\n>s1\nAAAAAAAAAA\n")
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneB_R.fasta")), ">s1\nGGGGGGGGGG\n>s1\nGGGGGGGGGG\n")
	expect.EQ(t, strings.Count(readFile(t, filepath.Join(f.outDir, "geneA_coverage.tsv")), "\n"), 4)
}

func TestRunMultipleSamples(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := vcontext.Background()
	f := newRunFixture(t, tmpDir)

	header, chr1 := newHeader(t)
	recs := append(newReads(t, chr1, 5, 100, "AAAAAAAAAA"), newReads(t, chr1, 5, 100, "CCCCCCCCCC")...)
	writeBAM(t, filepath.Join(f.opts.BAMDir, "s2.bam"), header, recs, false)

	for _, parallelism := range []int{1, 4} {
		require.NoError(t, os.RemoveAll(f.outDir))
		f.opts.Parallelism = parallelism
		assert.NoError(t, consensus.Run(ctx, &f.opts))
		expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_coverage.tsv")),
			"Gene\tSample\tCoverage\tRetained\n"+
				"geneA\ts1\t15.00\tYes\n"+
				"geneA\ts2\t10.00\tYes\n"+
				"\n"+
				"geneA\tPromedio\t12.50\n")
		expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_F.fasta")),
			">s1\nAAAAAAAAAA\n>s2\nMMMMMMMMMM\n")
	}
}

func TestRunMinCoverage(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := vcontext.Background()
	f := newRunFixture(t, tmpDir)

	f.opts.MinCoverage = 20
	assert.NoError(t, consensus.Run(ctx, &f.opts))
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_coverage.tsv")),
		"Gene\tSample\tCoverage\tRetained\n"+
			"geneA\ts1\t15.00\tNo\n"+
			"\n"+
			"geneA\tPromedio\t15.00\n")
	expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneB_coverage.tsv")),
		"Gene\tSample\tCoverage\tRetained\n"+
			"geneB\ts1\t12.00\tNo\n"+
			"\n"+
			"geneB\tPromedio\t12.00\n")
	for _, name := range []string{"geneA_F.fasta", "geneB_R.fasta"} {
		_, err := os.Stat(filepath.Join(f.outDir, name))
		expect.True(t, os.IsNotExist(err), "%s: %v", name, err)
	}
}

func TestRunErrors(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := vcontext.Background()

	t.Run("all_samples_fail", func(t *testing.T) {
		f := newRunFixture(t, filepath.Join(tmpDir, "all_samples_fail"))
		writeFile(t, filepath.Join(f.opts.BAMDir, "s1.bam"), "corrupt")
		require.NoError(t, os.Remove(filepath.Join(f.opts.BAMDir, "s1.bam.bai")))
		err := consensus.Run(ctx, &f.opts)
		nse, ok := err.(*consensus.NoSamplesError)
		require.True(t, ok, "err: %v", err)
		expect.EQ(t, nse.Region.Label, "geneA")
		expect.EQ(t, readFile(t, filepath.Join(f.outDir, "geneA_coverage.tsv")), "Gene\tSample\tCoverage\tRetained\n")
		// The run stops at the first failing region.
		_, err = os.Stat(filepath.Join(f.outDir, "geneB_coverage.tsv"))
		expect.True(t, os.IsNotExist(err), "err: %v", err)
	})

	t.Run("unknown_reference_contig", func(t *testing.T) {
		f := newRunFixture(t, filepath.Join(tmpDir, "unknown_reference_contig"))
		writeFile(t, f.opts.BedPath, "chr7\t100\t110\tgeneC\t+\n")
		err := consensus.Run(ctx, &f.opts)
		expect.True(t, errors.Is(errors.NotExist, err), "err: %v", err)
	})

	t.Run("bad_strand", func(t *testing.T) {
		f := newRunFixture(t, filepath.Join(tmpDir, "bad_strand"))
		writeFile(t, f.opts.BedPath, "chr1\t100\t110\tgeneA\t.\n")
		expect.NotNil(t, consensus.Run(ctx, &f.opts))
	})

	t.Run("missing_option", func(t *testing.T) {
		f := newRunFixture(t, filepath.Join(tmpDir, "missing_option"))
		f.opts.OutputDir = ""
		err := consensus.Run(ctx, &f.opts)
		expect.True(t, errors.Is(errors.Invalid, err), "err: %v", err)
	})
}

func TestListSamples(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	ctx := vcontext.Background()

	for _, name := range []string{"zeta.bam", "alpha.bam", "alpha.bam.bai", "mid.sam", "beta.bam"} {
		writeFile(t, filepath.Join(tmpDir, name), "")
	}
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "dir.bam"), 0755))
	samples, err := consensus.ListSamples(ctx, tmpDir)
	assert.NoError(t, err)
	var names []string
	for _, s := range samples {
		names = append(names, s.Name)
		expect.EQ(t, s.Path, filepath.Join(tmpDir, s.Name+".bam"))
	}
	expect.EQ(t, names, []string{"alpha", "beta", "zeta"})
}

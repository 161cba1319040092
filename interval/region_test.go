package interval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

func TestNewRegions(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []Region
	}{
		{
			"basic",
			"chr1\t100\t110\tgeneA\t+\n",
			[]Region{{"chr1", 100, 110, "geneA", StrandFwd}},
		},
		{
			"extra_columns_and_blank_lines",
			"\nchr1\t100\t110\tgeneA\t+\t0.5\tfoo\n  \nchr2\t0\t3\tgeneB\t-\r\n",
			[]Region{
				{"chr1", 100, 110, "geneA", StrandFwd},
				{"chr2", 0, 3, "geneB", StrandRev},
			},
		},
		{
			"file_order_kept",
			"chr2\t50\t60\tz\t+\nchr1\t10\t20\ta\t+\nchr2\t50\t60\tz\t-\n",
			[]Region{
				{"chr2", 50, 60, "z", StrandFwd},
				{"chr1", 10, 20, "a", StrandFwd},
				{"chr2", 50, 60, "z", StrandRev},
			},
		},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRegions(strings.NewReader(tt.data))
			assert.NoError(t, err)
			expect.EQ(t, got, tt.want)
		})
	}
}

func TestNewRegionsErrors(t *testing.T) {
	for _, data := range []string{
		"chr1\t100\t110\tgeneA\n",
		"chr1 100 110 geneA +\n",
		"chr1\tx\t110\tgeneA\t+\n",
		"chr1\t100\t1e3\tgeneA\t+\n",
		"chr1\t-1\t110\tgeneA\t+\n",
		"chr1\t110\t110\tgeneA\t+\n",
		"chr1\t120\t110\tgeneA\t+\n",
		"chr1\t100\t110\tgeneA\t.\n",
		"\t100\t110\tgeneA\t+\n",
	} {
		_, err := NewRegions(strings.NewReader(data))
		if err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}

func TestNewRegionsFromPath(t *testing.T) {
	got, err := NewRegionsFromPath("testdata/regions.bed")
	assert.NoError(t, err)
	expect.EQ(t, got, []Region{
		{"chr1", 100, 110, "geneA", StrandFwd},
		{"chr2", 5, 20, "geneB", StrandRev},
	})
	_, err = NewRegionsFromPath("testdata/nonexistent.bed")
	expect.NotNil(t, err)
}

func TestNewRegionsFromGzipPath(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	path := filepath.Join(tmpDir, "regions.bed.gz")
	out, err := os.Create(path)
	assert.NoError(t, err)
	gz := gzip.NewWriter(out)
	_, err = gz.Write([]byte("chr1\t100\t110\tgeneA\t+\nchr3\t0\t8\tgeneC\t-\n"))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, out.Close())

	got, err := NewRegionsFromPath(path)
	assert.NoError(t, err)
	expect.EQ(t, got, []Region{
		{"chr1", 100, 110, "geneA", StrandFwd},
		{"chr3", 0, 8, "geneC", StrandRev},
	})

	// A plain-text file with a .gz name is rejected.
	plain := filepath.Join(tmpDir, "plain.bed.gz")
	assert.NoError(t, ioutil.WriteFile(plain, []byte("chr1\t100\t110\tgeneA\t+\n"), 0644))
	_, err = NewRegionsFromPath(plain)
	expect.NotNil(t, err)
}

func TestStrand(t *testing.T) {
	expect.EQ(t, StrandFwd.Suffix(), "_F")
	expect.EQ(t, StrandRev.Suffix(), "_R")
	expect.EQ(t, StrandRev.String(), "-")
	r := Region{"chr1", 100, 110, "geneA", StrandFwd}
	expect.EQ(t, r.String(), "chr1:100-110(+)")
}

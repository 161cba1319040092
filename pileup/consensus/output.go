// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package consensus

import (
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/consensuskit/bio/interval"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

const (
	coverageSuffix = "_coverage.tsv"
	fastaSuffix    = ".fasta"
	summaryLabel   = "Promedio"
)

// CoverageRecord is one data row of a coverage table.
type CoverageRecord struct {
	Gene     string
	Sample   string
	Coverage float64
	Retained bool
}

// CoveragePath returns the coverage table path of region under outDir.
func CoveragePath(outDir string, region interval.Region) string {
	return filepath.Join(outDir, region.Label+coverageSuffix)
}

// FastaPath returns the consensus FASTA path of region under outDir.  Both
// regions of a gene on the same strand share the file.
func FastaPath(outDir string, region interval.Region) string {
	return filepath.Join(outDir, region.Label+region.Strand.Suffix()+fastaSuffix)
}

func formatCoverage(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatRetained(retained bool) string {
	if retained {
		return "Yes"
	}
	return "No"
}

// coverageWriter writes the coverage table of one region.
type coverageWriter struct {
	out file.File
	w   io.Writer
	tsv *tsv.Writer
}

func newCoverageWriter(ctx context.Context, path string) (*coverageWriter, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	cw := &coverageWriter{out: out, w: out.Writer(ctx)}
	cw.tsv = tsv.NewWriter(cw.w)
	cw.tsv.WriteString("Gene")
	cw.tsv.WriteString("Sample")
	cw.tsv.WriteString("Coverage")
	cw.tsv.WriteString("Retained")
	if err = cw.tsv.EndLine(); err != nil {
		_ = out.Close(ctx)
		return nil, err
	}
	return cw, nil
}

func (cw *coverageWriter) write(rec CoverageRecord) error {
	cw.tsv.WriteString(rec.Gene)
	cw.tsv.WriteString(rec.Sample)
	cw.tsv.WriteString(formatCoverage(rec.Coverage))
	cw.tsv.WriteString(formatRetained(rec.Retained))
	return cw.tsv.EndLine()
}

// writeSummary ends the table with a blank line and the mean coverage row.
func (cw *coverageWriter) writeSummary(gene string, mean float64) error {
	if err := cw.tsv.Flush(); err != nil {
		return err
	}
	if _, err := io.WriteString(cw.w, "\n"); err != nil {
		return err
	}
	cw.tsv.WriteString(gene)
	cw.tsv.WriteString(summaryLabel)
	cw.tsv.WriteString(formatCoverage(mean))
	return cw.tsv.EndLine()
}

func (cw *coverageWriter) close(ctx context.Context, err *error) {
	if e := cw.tsv.Flush(); e != nil && *err == nil {
		*err = e
	}
	file.CloseAndReport(ctx, cw.out, err)
}

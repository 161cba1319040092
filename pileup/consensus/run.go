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
	"fmt"
	"os"
	"sort"

	"github.com/consensuskit/bio/encoding/bamprovider"
	"github.com/consensuskit/bio/encoding/fasta"
	"github.com/consensuskit/bio/interval"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Sample is one BAM file of the input directory.
type Sample struct {
	Name string
	Path string
}

// NoSamplesError is returned by Run when no sample of a region could be
// processed.
type NoSamplesError struct {
	Region interval.Region
}

func (e *NoSamplesError) Error() string {
	return fmt.Sprintf("all samples failed for region %s (%v)", e.Region.Label, e.Region)
}

// ListSamples returns the BAM files directly under dir, sorted by sample name.
func ListSamples(ctx context.Context, dir string) ([]Sample, error) {
	var samples []Sample
	lister := file.List(ctx, dir, false)
	for lister.Scan() {
		if lister.IsDir() || !bamprovider.IsBAMPath(lister.Path()) {
			continue
		}
		samples = append(samples, Sample{
			Name: bamprovider.SampleName(lister.Path()),
			Path: lister.Path(),
		})
	}
	if err := lister.Err(); err != nil {
		return nil, errors.E(err, "listing BAM files in", dir)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Path < samples[j].Path
	})
	return samples, nil
}

func (o *Opts) validate() error {
	for _, f := range []struct{ name, val string }{
		{"bed file", o.BedPath},
		{"reference file", o.ReferencePath},
		{"BAM folder", o.BAMDir},
		{"output folder", o.OutputDir},
	} {
		if f.val == "" {
			return errors.E(errors.Invalid, "consensus: missing", f.name)
		}
	}
	if o.MinFraction < 0 || o.MinFraction > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("consensus: min fraction %v outside [0, 1]", o.MinFraction))
	}
	if o.MinCoverage < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("consensus: negative min coverage %d", o.MinCoverage))
	}
	return nil
}

// Run calls the consensus of every region in opts.BedPath for every BAM in
// opts.BAMDir.  For each region it writes <gene>_coverage.tsv and appends the
// retained sequences to <gene>_F.fasta or <gene>_R.fasta in opts.OutputDir.
// Samples that cannot be read are logged and skipped; a region without any
// readable sample aborts the run with a *NoSamplesError.
func Run(ctx context.Context, opts *Opts) (err error) {
	if err = opts.validate(); err != nil {
		return
	}
	var regions []interval.Region
	if regions, err = interval.NewRegionsFromPath(opts.BedPath); err != nil {
		return
	}
	var ref *fasta.File
	if ref, err = fasta.Open(ctx, opts.ReferencePath); err != nil {
		return
	}
	defer func() {
		if e := ref.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if err = os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return errors.E(err, "creating output folder")
	}
	var samples []Sample
	if samples, err = ListSamples(ctx, opts.BAMDir); err != nil {
		return
	}
	log.Printf("consensus: %d region(s), %d sample(s)", len(regions), len(samples))
	for _, region := range regions {
		if err = runRegion(ctx, ref, region, samples, opts); err != nil {
			return
		}
	}
	log.Printf("consensus: done, results written to %s", opts.OutputDir)
	return nil
}

type sampleResult struct {
	res Result
	err error
}

func callSample(s Sample, region interval.Region, refLen int, opts *Opts) (res Result, err error) {
	p := bamprovider.NewProvider(s.Path)
	defer func() {
		if e := p.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return CallProvider(p, region, refLen, opts)
}

func runRegion(ctx context.Context, ref fasta.Fasta, region interval.Region, samples []Sample, opts *Opts) (err error) {
	var cw *coverageWriter
	if cw, err = newCoverageWriter(ctx, CoveragePath(opts.OutputDir, region)); err != nil {
		return
	}
	defer cw.close(ctx, &err)

	var refLen int
	if refLen, err = ReferenceLength(ref, region); err != nil {
		return
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	results := make([]sampleResult, len(samples))
	// Sample failures are recorded per sample and reported below.
	if err = traverse.Limit(parallelism).Each(len(samples), func(i int) error {
		results[i].res, results[i].err = callSample(samples[i], region, refLen, opts)
		return nil
	}); err != nil {
		return
	}

	fastaPath := FastaPath(opts.OutputDir, region)
	var (
		sum float64
		n   int
	)
	for i, s := range samples {
		r := results[i]
		if r.err != nil {
			log.Error.Printf("consensus: sample %s (%s), region %v: %v", s.Name, s.Path, region, r.err)
			continue
		}
		if r.res.Retained {
			if err = fasta.AppendRecord(fastaPath, s.Name, r.res.Seq); err != nil {
				return errors.E(err, "writing", fastaPath)
			}
		}
		if err = cw.write(CoverageRecord{
			Gene:     region.Label,
			Sample:   s.Name,
			Coverage: r.res.AvgCoverage,
			Retained: r.res.Retained,
		}); err != nil {
			return
		}
		sum += r.res.AvgCoverage
		n++
	}
	if n == 0 {
		return &NoSamplesError{Region: region}
	}
	mean := sum / float64(n)
	log.Printf("consensus: %v: %d/%d sample(s), mean coverage %s", region, n, len(samples), formatCoverage(mean))
	return cw.writeSummary(region.Label, mean)
}

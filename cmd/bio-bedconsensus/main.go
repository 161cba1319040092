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
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/consensuskit/bio/pileup/consensus"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/profile"
)

var (
	bedPath        = flag.String("bed_file", consensus.DefaultOpts.BedPath, "Input BED path (contig, start, end, gene, strand); required")
	referencePath  = flag.String("reference_file", consensus.DefaultOpts.ReferencePath, "Reference FASTA path; a .fai next to it is used when present; required")
	bamDir         = flag.String("bam_folder", consensus.DefaultOpts.BAMDir, "Folder of input BAMs, one per sample; required")
	outputDir      = flag.String("output_folder", consensus.DefaultOpts.OutputDir, "Output folder for FASTA files and coverage tables; required")
	minFraction    = flag.Float64("min_percentage", consensus.DefaultOpts.MinFraction, "Minimum fraction of the bases at a position a base needs to be called")
	minCoverage    = flag.Int("min_coverage", consensus.DefaultOpts.MinCoverage, "Minimum number of bases at a position, and minimum average coverage of a region")
	minBaseQual    = flag.Int("min_base_quality", consensus.DefaultOpts.MinBaseQual, "Lower bound on base quality in a single read")
	mapq           = flag.Int("min_mapq", consensus.DefaultOpts.Mapq, "Reads with MAPQ below this level are skipped")
	flagExclude    = flag.Int("flag_exclude", consensus.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	ignoreOverlaps = flag.Bool("ignore_overlaps", consensus.DefaultOpts.IgnoreOverlaps, "Count the overlapping bases of two mates once")
	ignoreOrphans  = flag.Bool("ignore_orphans", consensus.DefaultOpts.IgnoreOrphans, "Skip paired reads that are not in a proper pair")
	multiBaseIUPAC = flag.Bool("multi_base_iupac", consensus.DefaultOpts.MultiBaseIUPAC, "Report the IUPAC code, instead of all the bases, when several bases pass -min_percentage")
	parallelism    = flag.Int("parallelism", consensus.DefaultOpts.Parallelism, "Number of BAMs processed concurrently")
	profileDir     = flag.String("profile", "", "If set, write a CPU profile to this directory")
)

func bedConsensusUsage() {
	fmt.Printf("Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bedConsensusUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("Unexpected positional arguments: '%s'", strings.Join(flag.Args(), " "))
	}
	var missing []string
	for _, f := range []struct {
		name string
		val  string
	}{
		{"bed_file", *bedPath},
		{"reference_file", *referencePath},
		{"bam_folder", *bamDir},
		{"output_folder", *outputDir},
	} {
		if f.val == "" {
			missing = append(missing, "--"+f.name)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("Missing required flag(s): %s", strings.Join(missing, ", "))
	}
	var prof interface{ Stop() }
	if *profileDir != "" {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.NoShutdownHook)
	}

	ctx := vcontext.Background()
	opts := consensus.Opts{
		BedPath:        *bedPath,
		ReferencePath:  *referencePath,
		BAMDir:         *bamDir,
		OutputDir:      *outputDir,
		MinFraction:    *minFraction,
		MinCoverage:    *minCoverage,
		MinBaseQual:    *minBaseQual,
		Mapq:           *mapq,
		FlagExclude:    *flagExclude,
		IgnoreOverlaps: *ignoreOverlaps,
		IgnoreOrphans:  *ignoreOrphans,
		MultiBaseIUPAC: *multiBaseIUPAC,
		Parallelism:    *parallelism,
	}
	err := consensus.Run(ctx, &opts)
	// log.Fatalf exits without running deferred calls.
	if prof != nil {
		prof.Stop()
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}

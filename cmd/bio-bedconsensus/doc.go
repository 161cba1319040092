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

/*
bio-bedconsensus calls a consensus sequence for every region of a BED file in
every BAM of a folder.  For each region "gene", it writes gene_coverage.tsv
with the average coverage of each sample and appends the sequences of samples
with enough coverage to gene_F.fasta or gene_R.fasta, depending on the strand
of the region.

At each position, bases with a frequency of at least -min_percentage are
called.  When no base reaches it, the bases tied at the highest count are
reported with their IUPAC code.  Positions covered by fewer than
-min_coverage bases are reported as N.  Minus-strand sequences are written as
read from the reference strand.

The BED file needs five tab-separated columns: contig, 0-based start, end,
gene, and strand ("+" or "-").

Sample usage:
bio-bedconsensus \
    --bed_file regions.bed \
    --reference_file ref.fa \
    --bam_folder bams/ \
    --output_folder out/
*/
package main

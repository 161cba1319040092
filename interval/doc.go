/*Package interval loads the genomic regions a consensus run is driven by.
  A region list is a BED-like, tab-delimited file with (at least) the columns
    contig, 0-based start, end (exclusive), gene label, strand
  Regions are returned in file order; overlapping or repeated regions are kept
  as separate records.
  It assumes every position fits in a PosType, which is currently defined as
  int32 since that's what BAM files are limited to.
*/
package interval

// Package bamprovider provides utilities for reading the alignments of a BAM
// file that overlap a genomic range.
//
// The Provider is an interface for reading a BAM file one region at a time.
// BAMProvider reads local or S3 files, using a .bai index when one exists;
// FakeProvider serves in-memory records for tests.
package bamprovider

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
	"context"
	"fmt"

	"github.com/consensuskit/bio/encoding/fasta"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

// indexFasta writes the index of the FASTA at path to outPath.
func indexFasta(ctx context.Context, path, outPath string) (err error) {
	if fileio.DetermineType(path) == fileio.Gzip {
		return fmt.Errorf("%s: compressed FASTA files cannot be indexed", path)
	}
	var in, out file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	if out, err = file.Create(ctx, outPath); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = fasta.GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		return
	}
	log.Printf("wrote %s", outPath)
	return
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Generate the .fai index of FASTA files",
		ArgsName: "path...",
	}
	outFlag := cmd.Flags.String("out", "", "Output index path. By default, set to input path + "+fasta.IndexSuffix+". Only valid with a single input")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("index takes at least one FASTA path, but got none")
		}
		if *outFlag != "" && len(argv) > 1 {
			return fmt.Errorf("-out requires a single FASTA path, but got %v", argv)
		}
		ctx := vcontext.Background()
		for _, path := range argv {
			outPath := path + fasta.IndexSuffix
			if *outFlag != "" {
				outPath = *outFlag
			}
			if err := indexFasta(ctx, path, outPath); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-faidx",
			Short:    "Tools for working with FASTA indexes",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdIndex(),
			},
		})
}

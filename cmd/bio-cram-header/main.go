// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// bio-cram-header inspects and builds CRAM compression headers.
//
//	bio-cram-header dump a.cram b.cram
//
// prints the compression header of every container of the given files.
//
//	bio-cram-header build -reference ref.fa -out out.cram in.bam
//
// builds one compression header per group of records of a BAM file and
// prints a summary and a digest of each. With -out, the headers are also
// written as a CRAM file whose containers hold only their compression
// headers, which dump can read back.
package main

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdDump() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dump",
		Short:    "Print the compression headers of CRAM files",
		ArgsName: "path...",
	}
	opts := dumpOpts{}
	cmd.Flags.IntVar(&opts.parallelism, "parallelism", runtime.NumCPU(), "Maximum number of files read concurrently")
	cmd.Flags.BoolVar(&opts.summary, "summary", false, "Print one line per container instead of the full header")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("dump takes one or more pathnames, but got none")
		}
		return dump(vcontext.Background(), env.Stdout, argv, opts)
	})
	return cmd
}

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "build",
		Short:    "Build compression headers from the records of a BAM file",
		ArgsName: "bampath",
	}
	opts := buildOpts{}
	cmd.Flags.StringVar(&opts.referencePath, "reference", "", "FASTA file holding the sequences the BAM is aligned to. Required.")
	cmd.Flags.IntVar(&opts.recordsPerContainer, "records-per-container", 10000, "Maximum number of records per container")
	cmd.Flags.StringVar(&opts.method, "method", "gzip", "Compression method of the header blocks: raw, gzip, bzip2 or lzma")
	cmd.Flags.StringVar(&opts.outPath, "out", "", "If set, write the headers to this path as a CRAM file")
	cmd.Flags.BoolVar(&opts.noReadNames, "no-read-names", false, "Clear the RN preservation flag")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("build takes one pathname argument, but got %v", argv)
		}
		if opts.referencePath == "" {
			return fmt.Errorf("build: -reference is required")
		}
		return build(vcontext.Background(), env.Stdout, argv[0], opts)
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-cram-header",
			Short:    "Tools for working with CRAM compression headers",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdDump(),
				newCmdBuild(),
			},
		})
}

// Package slurm knows the command-line contracts of the Slurm client tools.
//
// It builds argument vectors for sbatch, squeue, scancel and sinfo and parses
// their output into typed records. Nothing here spawns processes; callers run
// the vectors through a remote.Runner and hand the captured output back to the
// parsers in this package.
//
// Job script headers are read with ParseDirectives. Only the leading comment
// block is scanned:
//
//	#!/bin/bash
//	#SBATCH --partition=gpu --time 2:00:00   # trailing comment
//	#SBATCH -N 1 -c8
//	#SBATCH --exclusive
//
//	python train.py                          # header ends here
//
// Long options may be written as --key=value, --key value or a bare --key
// (stored with an empty value). The short options -p -t -N -n -c -J -o -e -A
// -q and -G are mapped to their long names. Later directives override earlier
// ones.
package slurm

// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gopacker/unpack200/internal/rlog"
)

var (
	fastFlag    bool
	verboseFlag bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "packdump",
		Short:         "Inspect pack200-style class archives",
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&fastFlag, "fast", false, "skip materializing resource-file bytes")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print debug-level decode diagnostics")

	root.AddCommand(newDumpCmd())
	return root
}

func loggerFromFlags() rlog.Logger {
	if !verboseFlag {
		return nil
	}
	return rlog.NewStdLogger(os.Stderr)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

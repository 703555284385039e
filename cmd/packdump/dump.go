// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	unpack200 "github.com/gopacker/unpack200"
)

func newDumpCmd() *cobra.Command {
	var (
		wantClasses   bool
		wantFiles     bool
		wantAnomalies bool
	)

	cmd := &cobra.Command{
		Use:   "dump <archive>",
		Short: "Decode an archive and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := unpack200.Open(args[0], &unpack200.Options{
				Fast:   fastFlag,
				Logger: loggerFromFlags(),
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			fmt.Printf("archive version %d.%d, %d classes, %d files\n",
				pkg.DefaultVersion.Major, pkg.DefaultVersion.Minor, len(pkg.Classes), len(pkg.Files))

			if !wantClasses && !wantFiles && !wantAnomalies {
				wantClasses, wantFiles, wantAnomalies = true, true, true
			}
			if wantClasses {
				dumpClasses(pkg)
			}
			if wantFiles {
				dumpFiles(pkg)
			}
			if wantAnomalies {
				dumpAnomalies(pkg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wantClasses, "classes", false, "print class/member summaries")
	cmd.Flags().BoolVar(&wantFiles, "files", false, "print resource-file listing")
	cmd.Flags().BoolVar(&wantAnomalies, "anomalies", false, "print recorded anomalies")
	return cmd
}

func dumpClasses(pkg *unpack200.Package) {
	for _, c := range pkg.Classes {
		super := c.SuperName
		if super == "" {
			super = "<none>"
		}
		fmt.Printf("\nclass %s extends %s (%d fields, %d methods, %d attributes)\n",
			c.ThisName, super, len(c.Fields), len(c.Methods), len(c.Attributes))
		for _, f := range c.Fields {
			fmt.Printf("  field  %s %s\n", f.DescriptorStr, f.NameStr)
		}
		for _, m := range c.Methods {
			codeNote := ""
			if m.Code != nil {
				codeNote = fmt.Sprintf(" [code: %d bytes, max_stack=%d, max_locals=%d, %d handlers]",
					len(m.Code.Bytes), m.Code.MaxStack, m.Code.MaxLocals, len(m.Code.Handlers))
			}
			fmt.Printf("  method %s%s%s\n", m.NameStr, m.DescriptorStr, codeNote)
		}
	}
}

func dumpFiles(pkg *unpack200.Package) {
	if len(pkg.Files) == 0 {
		return
	}
	fmt.Println("\nfiles:")
	for _, f := range pkg.Files {
		stub := ""
		if f.IsClassStub {
			stub = " (classfile stub)"
		}
		fmt.Printf("  %s (%d bytes)%s\n", f.Name, len(f.Data), stub)
	}
}

func dumpAnomalies(pkg *unpack200.Package) {
	if len(pkg.Anomalies) == 0 {
		return
	}
	fmt.Println("\nanomalies:")
	for _, a := range pkg.Anomalies {
		fmt.Printf("  - %s\n", a)
	}
}

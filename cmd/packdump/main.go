// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command packdump decodes a pack200-style archive and prints its
// structure: classes, members, files, and any anomalies found along the
// way.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package layoutdef embeds the table of predefined attribute layouts, one
// grammar string per (context, attribute name) pair. Reading the table is
// the only job of this package; attribute.go owns parsing the grammar
// itself and running the decode engine it describes.
package layoutdef

import (
	_ "embed"

	"github.com/BurntSushi/toml"
)

//go:embed layouts.toml
var layoutsTOML string

// Load decodes the embedded table into context -> attribute name -> grammar.
func Load() (map[string]map[string]string, error) {
	var table map[string]map[string]string
	if _, err := toml.Decode(layoutsTOML, &table); err != nil {
		return nil, err
	}
	return table, nil
}

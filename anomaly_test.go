// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func objectEntry(name string) *cpEntry {
	return &cpEntry{Tag: TagClass, Ref: &cpEntry{Tag: TagUtf8, Str: name}}
}

func TestGetAnomaliesEmptyClass(t *testing.T) {
	pkg := &Package{Classes: []*Class{{ThisName: "com/example/Empty"}}}
	require.NoError(t, pkg.GetAnomalies())
	require.Contains(t, pkg.Anomalies, "class com/example/Empty: "+AnoEmptyClass)
}

func TestGetAnomaliesRootClassWithSuper(t *testing.T) {
	pkg := &Package{Classes: []*Class{{
		ThisName: "java/lang/Object",
		Super:    objectEntry("java/lang/SomethingElse"),
		Fields:   []*Field{{NameStr: "x", DescriptorStr: "I"}},
	}}}
	require.NoError(t, pkg.GetAnomalies())
	require.Contains(t, pkg.Anomalies, AnoRootClassHasSuper)
}

func TestGetAnomaliesDuplicateMember(t *testing.T) {
	pkg := &Package{Classes: []*Class{{
		ThisName: "com/example/Dup",
		Fields: []*Field{
			{NameStr: "x", DescriptorStr: "I"},
			{NameStr: "x", DescriptorStr: "I"},
		},
	}}}
	require.NoError(t, pkg.GetAnomalies())
	require.Contains(t, pkg.Anomalies, "class com/example/Dup: "+AnoDuplicateMember)
}

func TestGetAnomaliesMissingCode(t *testing.T) {
	pkg := &Package{Classes: []*Class{{
		ThisName: "com/example/NeedsCode",
		Methods:  []*Method{{NameStr: "run", DescriptorStr: "()V", AccessFlags: 0}},
	}}}
	require.NoError(t, pkg.GetAnomalies())
	require.Contains(t, pkg.Anomalies, "method com/example/NeedsCode.run: "+AnoMissingCode)
}

func TestGetAnomaliesAbstractMethodWithoutCodeIsFine(t *testing.T) {
	pkg := &Package{Classes: []*Class{{
		ThisName: "com/example/Abstract",
		Methods:  []*Method{{NameStr: "run", DescriptorStr: "()V", AccessFlags: accAbstract}},
	}}}
	require.NoError(t, pkg.GetAnomalies())
	require.NotContains(t, pkg.Anomalies, "method com/example/Abstract.run: "+AnoMissingCode)
}

func TestGetAnomaliesExcessFileStubs(t *testing.T) {
	pkg := &Package{
		Classes: []*Class{{ThisName: "com/example/Only"}},
		Files: []*ResourceFile{
			{Name: "Only.class", IsClassStub: true},
			{Name: "Extra.class", IsClassStub: true},
		},
	}
	require.NoError(t, pkg.GetAnomalies())
	require.Contains(t, pkg.Anomalies, AnoExcessFileStubs)
}

func TestAddAnomalyDeduplicates(t *testing.T) {
	pkg := &Package{}
	pkg.addAnomaly("x")
	pkg.addAnomaly("x")
	require.Equal(t, []string{"x"}, pkg.Anomalies)
}

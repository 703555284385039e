// Copyright 2024 The unpack200 Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package unpack200

// Anomalies recorded against Package.Anomalies: legal-but-suspicious
// conditions an archive can carry without tripping a ReadError, the same
// non-fatal-oddity role the teacher's PE anomaly slice fills.
var (
	// AnoEmptyClass is reported when a class declares no fields and no
	// methods at all.
	AnoEmptyClass = "class has no fields and no methods"

	// AnoMissingCode is reported when a non-abstract, non-native method
	// carries no Code attribute.
	AnoMissingCode = "method is neither abstract nor native but has no Code body"

	// AnoUnexpectedCode is reported when an abstract or native method
	// carries a Code attribute (illegal in a real class file, but this
	// reader only warns; spec.md leaves rejecting it to a consumer).
	AnoUnexpectedCode = "abstract or native method carries a Code body"

	// AnoDuplicateMember is reported when a class declares the same
	// (name, descriptor) pair twice among its fields or methods.
	AnoDuplicateMember = "duplicate (name, descriptor) pair among class members"

	// AnoEmptyBootstrapMethods is reported when a class carries a
	// BootstrapMethods attribute with zero entries.
	AnoEmptyBootstrapMethods = "BootstrapMethods attribute present but empty"

	// AnoUnresolvedInnerClass is reported when an archive-wide
	// InnerClasses tuple names no inner class entry.
	AnoUnresolvedInnerClass = "archive-wide InnerClasses tuple has a nil inner reference"

	// AnoExcessFileStubs is reported when the archive declares more
	// zero-length classfile stubs than it has classes to bind them to.
	AnoExcessFileStubs = "more classfile stubs than classes; trailing stubs went unbound"

	// AnoRootClassHasSuper is reported when a class named
	// "java/lang/Object" still carries a resolved superclass reference.
	AnoRootClassHasSuper = "java/lang/Object carries a non-null superclass"
)

// JVM access-flag bits relevant to the anomaly checks below (JVMS §4.6,
// §4.5); this reader otherwise treats AccessFlags as an opaque residual
// mask left over once attrFlagMask strips the attribute bits.
const (
	accStatic   uint32 = 0x0008
	accNative   uint32 = 0x0100
	accAbstract uint32 = 0x0400
)

// GetAnomalies scans a fully-decoded Package for legal-but-suspicious
// conditions and appends them to pkg.Anomalies, deduplicated. It is run
// by New once reconstruction completes (spec.md §4.7's post-pass), the
// same place the teacher's GetAnomalies slots into pe.File's pipeline.
func (pkg *Package) GetAnomalies() error {
	for _, c := range pkg.Classes {
		pkg.checkClassAnomalies(c)
	}

	var stubs int
	for _, f := range pkg.Files {
		if f.IsClassStub {
			stubs++
		}
	}
	if stubs > len(pkg.Classes) {
		pkg.addAnomaly(AnoExcessFileStubs)
	}

	for _, ic := range pkg.InnerClasses {
		if ic.Inner == nil {
			pkg.addAnomaly(AnoUnresolvedInnerClass)
			break
		}
	}

	return nil
}

func (pkg *Package) checkClassAnomalies(c *Class) {
	if len(c.Fields) == 0 && len(c.Methods) == 0 {
		pkg.addAnomaly("class " + c.ThisName + ": " + AnoEmptyClass)
	}

	if c.ThisName == "java/lang/Object" && c.Super != nil {
		pkg.addAnomaly(AnoRootClassHasSuper)
	}

	seen := make(map[string]bool, len(c.Fields)+len(c.Methods))
	for _, f := range c.Fields {
		key := "F:" + f.NameStr + ":" + f.DescriptorStr
		if seen[key] {
			pkg.addAnomaly("class " + c.ThisName + ": " + AnoDuplicateMember)
		}
		seen[key] = true
	}
	for _, m := range c.Methods {
		key := "M:" + m.NameStr + ":" + m.DescriptorStr
		if seen[key] {
			pkg.addAnomaly("class " + c.ThisName + ": " + AnoDuplicateMember)
		}
		seen[key] = true

		abstractOrNative := m.AccessFlags&(accAbstract|accNative) != 0
		switch {
		case m.Code == nil && !abstractOrNative:
			pkg.addAnomaly("method " + c.ThisName + "." + m.NameStr + ": " + AnoMissingCode)
		case m.Code != nil && abstractOrNative:
			pkg.addAnomaly("method " + c.ThisName + "." + m.NameStr + ": " + AnoUnexpectedCode)
		}
	}

	for _, a := range c.Attributes {
		if a.NameStr == "BootstrapMethods" && a.Value != nil && len(a.Value.reps) == 0 {
			pkg.addAnomaly("class " + c.ThisName + ": " + AnoEmptyBootstrapMethods)
		}
	}
}

// addAnomaly appends anomaly to pkg.Anomalies unless already present.
func (pkg *Package) addAnomaly(anomaly string) {
	for _, a := range pkg.Anomalies {
		if a == anomaly {
			return
		}
	}
	pkg.Anomalies = append(pkg.Anomalies, anomaly)
}

package target

import (
	"slices"
	"testing"
)

func TestSetPreservesInsertionOrder(t *testing.T) {
	s := NewSet(
		&Target{ID: "//b:b_test"},
		&Target{ID: "//a:lib"},
		&Target{ID: "//c:c_test"},
	)

	want := []string{"//b:b_test", "//a:lib", "//c:c_test"}
	if got := s.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}

	var iterated []string
	for tgt := range s.All() {
		iterated = append(iterated, tgt.ID)
	}
	if !slices.Equal(iterated, want) {
		t.Errorf("All() = %v, want %v", iterated, want)
	}
}

func TestSetAddReplacesInPlace(t *testing.T) {
	s := NewSet(&Target{ID: "//a:one"}, &Target{ID: "//a:two"})
	s.Add(&Target{ID: "//a:one", Fingerprint: "ff"})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	got, ok := s.Get("//a:one")
	if !ok || got.Fingerprint != "ff" {
		t.Errorf("Get() = %+v, want replaced target", got)
	}
	if ids := s.IDs(); ids[0] != "//a:one" {
		t.Errorf("replaced target moved: %v", ids)
	}
}

func TestSetNilSafety(t *testing.T) {
	var s *Set
	s.Add(&Target{ID: "//a:a"}) // Should not panic

	if s.Len() != 0 {
		t.Error("nil set should be empty")
	}
	if _, ok := s.Get("//a:a"); ok {
		t.Error("Get() on nil set should return false")
	}
	if s.Targets() != nil {
		t.Error("Targets() on nil set should return nil")
	}
	for range s.All() {
		t.Error("All() on nil set should not yield")
	}
	if !s.Tests().IsEmpty() {
		t.Error("Tests() on nil set should be empty")
	}
}

func TestSetTests(t *testing.T) {
	s := NewSet(
		&Target{ID: "//fw:FrameworkA"},
		&Target{ID: "//fw:FrameworkA-Tests", IsTest: true},
		&Target{ID: "//lib:LibA-Tests", IsTest: true},
		&Target{ID: "//lib:Excluded-Tests", IsTest: true, Dependency: true},
	)

	tests := s.Tests()
	want := []string{"//fw:FrameworkA-Tests", "//lib:LibA-Tests"}
	if got := tests.IDs(); !slices.Equal(got, want) {
		t.Errorf("Tests() = %v, want %v", got, want)
	}

	// Targets are shared, not copied.
	orig, _ := s.Get("//lib:LibA-Tests")
	filtered, _ := tests.Get("//lib:LibA-Tests")
	if orig != filtered {
		t.Error("Tests() should share target pointers with the source set")
	}
}

func TestHasFingerprint(t *testing.T) {
	var nilTarget *Target
	if nilTarget.HasFingerprint() {
		t.Error("nil target should not have a fingerprint")
	}
	if (&Target{}).HasFingerprint() {
		t.Error("empty fingerprint should not count")
	}
	if !(&Target{Fingerprint: "1417ca1"}).HasFingerprint() {
		t.Error("expected fingerprint")
	}
}

func TestBuildConfigKey(t *testing.T) {
	base := BuildConfig{
		Platform:      "linux",
		Configuration: "fastbuild",
		Arch:          "arm64",
		Args:          []string{"--copt=-O2", "--features=thin_lto"},
	}

	if base.Key() != base.Clone().Key() {
		t.Error("Key() should be deterministic")
	}

	variants := map[string]BuildConfig{
		"platform":      {Platform: "macos", Configuration: "fastbuild", Arch: "arm64", Args: base.Args},
		"configuration": {Platform: "linux", Configuration: "opt", Arch: "arm64", Args: base.Args},
		"arch":          {Platform: "linux", Configuration: "fastbuild", Arch: "amd64", Args: base.Args},
		"args order":    {Platform: "linux", Configuration: "fastbuild", Arch: "arm64", Args: []string{"--features=thin_lto", "--copt=-O2"}},
		"no args":       {Platform: "linux", Configuration: "fastbuild", Arch: "arm64"},
		"output path":   {Platform: "linux", Configuration: "fastbuild", Arch: "arm64", Args: base.Args, OutputPath: "/tmp/out"},
	}

	for name, cfg := range variants {
		t.Run(name, func(t *testing.T) {
			if cfg.Equal(base) {
				t.Error("Equal() should be false")
			}
			if cfg.Key() == base.Key() {
				t.Errorf("Key() collision with base: %s", cfg.Key())
			}
		})
	}
}

func TestBuildConfigKeyFieldBoundaries(t *testing.T) {
	a := BuildConfig{Platform: "ab", Configuration: "c"}
	b := BuildConfig{Platform: "a", Configuration: "bc"}
	if a.Key() == b.Key() {
		t.Error("Key() should not be ambiguous across field boundaries")
	}
}

func TestBuildConfigClone(t *testing.T) {
	orig := BuildConfig{Args: []string{"--a"}}
	clone := orig.Clone()
	clone.Args[0] = "--b"
	if orig.Args[0] != "--a" {
		t.Error("Clone() should not share Args")
	}
}

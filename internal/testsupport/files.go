package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteCompiledModel lays out a fake compiled Core ML bundle named
// <name>.mlmodelc under outputDir with weightBytes of weights and returns the
// total number of bytes written.
func WriteCompiledModel(t testing.TB, outputDir, name string, weightBytes int64) int64 {
	t.Helper()

	bundle := filepath.Join(outputDir, name+".mlmodelc")
	files := []struct {
		rel  string
		size int64
	}{
		{filepath.Join("weights", "weight.bin"), max(weightBytes, 1)},
		{"model.mil", 128},
		{"coremldata.bin", 64},
	}
	var total int64
	for _, f := range files {
		fill(t, filepath.Join(bundle, f.rel), f.size)
		total += f.size
	}
	return total
}

func fill(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

package job

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// findCompanionConfig returns model.yaml (or .yml) sitting next to model.ckpt
// when it looks like a Stable Diffusion inference config. Without one the
// converter uses its bundled v1-inference.yaml.
func findCompanionConfig(checkpoint string) string {
	stem := strings.TrimSuffix(checkpoint, filepath.Ext(checkpoint))
	for _, ext := range []string{".yaml", ".yml"} {
		candidate := stem + ext
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			continue
		}
		if _, ok := doc["model"]; ok {
			return candidate
		}
	}
	return ""
}

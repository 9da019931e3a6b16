package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		id     string
		arches []string
		want   bool
	}{
		{"match by arch", `"aarch64" in arches`, "1.2.3", []string{"x86_64", "aarch64"}, true},
		{"no match by arch", `"aarch64" in arches`, "1.2.3", []string{"x86_64"}, false},
		{"match by id prefix", `hasPrefix(id, "41.")`, "41.20240101.0", []string{"x86_64"}, true},
		{"combined", `hasPrefix(id, "41.") && "s390x" in arches`, "41.20240101.0", []string{"x86_64"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			program, err := compileFilter(test.src)
			require.NoError(t, err)
			got, err := program.run(test.id, test.arches)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestCompileFilterRejectsNonBoolean(t *testing.T) {
	_, err := compileFilter(`id + "x"`)
	assert.Error(t, err)
}

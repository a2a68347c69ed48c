package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog_ToolSpecsReturnsConfiguredSpecs(t *testing.T) {
	specs := BuiltinToolSpecs()
	catalog := NewCatalog(specs...)

	got := catalog.ToolSpecs()
	assert.Len(t, got, 6)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
	}
	assert.ElementsMatch(t, []string{
		"time.now", "echo.text", "math.calculate",
		"memory.store", "memory.search", "memory.forget",
	}, names)
}

package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePatternDefault(t *testing.T) {
	p := ParsePattern("")
	assert.Equal(t, DefaultPattern, p.String())
}

func TestPatternResolveThreeLevels(t *testing.T) {
	p := ParsePattern("s3://{share}/{schema}/{table}")

	coords, ok := p.Resolve("sales-share/finance/orders", "default", "default")
	require.True(t, ok)
	assert.Equal(t, TableCoords{Share: "sales-share", Schema: "finance", Table: "orders"}, coords)

	_, ok = p.Resolve("finance/orders", "default", "default")
	assert.False(t, ok)
}

func TestPatternResolveTwoLevelsUsesDefaultShare(t *testing.T) {
	p := ParsePattern("{schema}/{table}")

	coords, ok := p.Resolve("finance/orders", "main", "default")
	require.True(t, ok)
	assert.Equal(t, TableCoords{Share: "main", Schema: "finance", Table: "orders"}, coords)
}

func TestPatternResolveTableOnlyUsesDefaults(t *testing.T) {
	p := ParsePattern("{table}")

	coords, ok := p.Resolve("orders", "main", "base")
	require.True(t, ok)
	assert.Equal(t, TableCoords{Share: "main", Schema: "base", Table: "orders"}, coords)
}

func TestPatternLiteralSegmentsMustMatch(t *testing.T) {
	p := ParsePattern("warehouse/{schema}/{table}")

	coords, ok := p.Resolve("warehouse/finance/orders", "main", "default")
	require.True(t, ok)
	assert.Equal(t, "finance", coords.Schema)

	_, ok = p.Resolve("archive/finance/orders", "main", "default")
	assert.False(t, ok)
}

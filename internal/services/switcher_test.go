package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsHiddenBelowTwoActiveServices(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Nil(t, catalog.Options([]ID{Marketing}, "/dashboard/client/marketing"))
	assert.Nil(t, catalog.Options(nil, "/dashboard/client"))
	assert.Nil(t, catalog.Options([]ID{Marketing, "unknown"}, "/dashboard/client"))
}

func TestOptionsListsEveryServiceWithActiveOnesEnabled(t *testing.T) {
	catalog := DefaultCatalog()
	active := []ID{Marketing, Courses}

	opts := catalog.Options(active, "/dashboard/client/courses/lessons/3")
	require.Len(t, opts, len(catalog.All()))

	enabled := 0
	for _, opt := range opts {
		if opt.Enabled {
			enabled++
		}
	}
	assert.Equal(t, len(active), enabled)
	assert.False(t, opts[1].Enabled, "website is inactive but still listed")
	assert.True(t, opts[2].Current)
	assert.False(t, opts[0].Current)
}

func TestCurrentUsesLongestSegmentPrefix(t *testing.T) {
	catalog := NewCatalog(
		Service{ID: Marketing, BasePath: "/dashboard/client"},
		Service{ID: Website, BasePath: "/dashboard/client/website/"},
	)

	svc, ok := catalog.Current("/dashboard/client/website/pages")
	require.True(t, ok)
	assert.Equal(t, Website, svc.ID)

	svc, ok = catalog.Current("/dashboard/client/websites")
	require.True(t, ok)
	assert.Equal(t, Marketing, svc.ID, "prefix match must respect path segments")

	_, ok = catalog.Current("/dashboard/agent")
	assert.False(t, ok)
}

func TestSelectOnlyLandsOnActiveServices(t *testing.T) {
	catalog := DefaultCatalog()
	active := []ID{Marketing, Website}

	path, ok := catalog.Select(active, Website)
	require.True(t, ok)
	assert.Equal(t, "/dashboard/client/website", path)

	path, ok = catalog.Select(active, Courses)
	assert.False(t, ok)
	assert.Empty(t, path)

	_, ok = catalog.Select(active, "crm")
	assert.False(t, ok)
}

func TestParseDropsUnknownAndDuplicates(t *testing.T) {
	assert.Equal(t, []ID{Marketing, Website}, Parse([]string{" Marketing", "website", "marketing", "crm"}))
	assert.Empty(t, Parse(nil))
}

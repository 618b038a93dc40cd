package labels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/core/tracker/trackertest"
)

func TestTranslator(t *testing.T) {
	tr, err := NewTranslator([]string{"p_*:priority: *", "bug:type: bug", "comp-*.x:area/*"})
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"p_high", "priority: high"},
		{"p_", "priority: "},
		{"bug", "type: bug"},
		{"Bug", "Bug"},
		{"comp-ui.x", "area/ui"},
		{"comp-uiax", "comp-uiax"},
		{"feature", "feature"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Translate(tt.in))
		})
	}
}

func TestTranslator_InvalidPattern(t *testing.T) {
	_, err := NewTranslator([]string{"no-colon"})
	assert.Error(t, err)
}

func TestTranslator_Nil(t *testing.T) {
	var tr *Translator
	assert.Equal(t, "x", tr.Translate("x"))
}

func TestMigrate_ReusesExistingCaseInsensitively(t *testing.T) {
	target := trackertest.NewTarget()
	target.Labels = []tracker.Label{{Name: "Bug", Color: "d73a4a"}}

	m, err := Migrate(context.Background(), []tracker.Label{
		{Name: "bug", Color: "#ff0000"},
		{Name: "feature", Color: "#00ff00", Description: "New things"},
	}, target, nil, nil)
	require.NoError(t, err)

	got, ok := m.Target("bug")
	require.True(t, ok)
	assert.Equal(t, "Bug", got)
	assert.Equal(t, []string{"Bug"}, m.Reused)
	assert.Equal(t, []string{"feature"}, m.Created)

	require.Len(t, target.Labels, 2)
	assert.Equal(t, tracker.Label{Name: "feature", Color: "00ff00", Description: "New things"}, target.Labels[1])
}

func TestMigrate_CollisionsCreateOneLabel(t *testing.T) {
	target := trackertest.NewTarget()
	tr, err := NewTranslator([]string{"prio-*:priority *", "P-*:priority *"})
	require.NoError(t, err)

	m, err := Migrate(context.Background(), []tracker.Label{
		{Name: "prio-high", Color: "#aa0000"},
		{Name: "P-high", Color: "#bb0000"},
		{Name: "Priority High", Color: "#cc0000"},
	}, target, tr, nil)
	require.NoError(t, err)

	assert.Len(t, target.Labels, 1)
	assert.Equal(t, []string{"priority high"}, m.Created)

	for _, src := range []string{"prio-high", "P-high", "Priority High"} {
		got, ok := m.Target(src)
		require.True(t, ok, src)
		assert.Equal(t, "priority high", got)
	}
	assert.Empty(t, m.Reused)
}

func TestMapping_Apply(t *testing.T) {
	m := NewMapping(map[string]string{"bug": "Bug", "defect": "Bug", "ui": "area/ui"})
	assert.Equal(t, []string{"Bug", "area/ui"}, m.Apply([]string{"bug", "defect", "unknown", "ui"}))
	assert.Nil(t, m.Apply(nil))
}

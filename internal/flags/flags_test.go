package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]bool
		flag      string
		expected  bool
	}{
		{
			name:     "journal defaults on",
			flag:     FlagJournal,
			expected: true,
		},
		{
			name:      "override turns journal off",
			overrides: map[string]bool{FlagJournal: false},
			flag:      FlagJournal,
			expected:  false,
		},
		{
			name:      "override leaves other defaults alone",
			overrides: map[string]bool{FlagJournal: false},
			flag:      FlagRestoreSession,
			expected:  true,
		},
		{
			name:      "unknown names stay off even when configured on",
			overrides: map[string]bool{"bulk-mode": true},
			flag:      "bulk-mode",
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, New(tt.overrides).Enabled(tt.flag))
		})
	}
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	require.False(t, r.Enabled(FlagJournal))
	require.Empty(t, r.All())
	require.Nil(t, r.Unknown())
}

func TestRegistry_Unknown(t *testing.T) {
	r := New(map[string]bool{"zeta": true, FlagRestoreSession: false, "alpha": false})
	require.Equal(t, []string{"alpha", "zeta"}, r.Unknown())
	require.NotContains(t, r.All(), "alpha")
}

func TestRegistry_AllIsACopy(t *testing.T) {
	r := New(nil)
	all := r.All()
	all[FlagJournal] = false
	require.True(t, r.Enabled(FlagJournal))
}

func TestRegistry_OverridesAreNotRetained(t *testing.T) {
	overrides := map[string]bool{FlagJournal: true}
	r := New(overrides)
	overrides[FlagJournal] = false
	require.True(t, r.Enabled(FlagJournal))
}

func TestDefaults_MatchKnown(t *testing.T) {
	d := Defaults()
	require.Len(t, d, len(Known()))
	for _, f := range Known() {
		require.Equal(t, f.Default, d[f.Name], f.Name)
		require.NotEmpty(t, f.Description, f.Name)
	}

	d[FlagJournal] = false
	require.True(t, Defaults()[FlagJournal], "each call returns a fresh map")
}

package workspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "simple name", input: "Clinic A", expect: "clinic-a"},
		{name: "accents and symbols collapse", input: "VetCare: 24/7!", expect: "vetcare-24-7"},
		{name: "already a slug", input: "clinic-a", expect: "clinic-a"},
		{name: "only symbols", input: "!!!", expect: ""},
		{name: "leading trailing separators", input: "--Vet--", expect: "vet"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expect, Slugify(tt.input))
		})
	}
}

func TestBuildSchemaName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ws_clinic_a_d4af", BuildSchemaName("ws", "clinic-a", "d4af"))
	require.Equal(t, "ws_vet_1_00ff", BuildSchemaName("", "vet-1", "00ff"))
	require.Equal(t, "acme_vet_ab", BuildSchemaName("acme", "vet", "ab"))
}

func TestHasSchemaPrefix(t *testing.T) {
	t.Parallel()

	require.True(t, HasSchemaPrefix("ws_clinic_a_d4af", "ws"))
	require.False(t, HasSchemaPrefix("public", "ws"))
	require.False(t, HasSchemaPrefix("wsclinic", "ws"))
	require.True(t, HasSchemaPrefix("ws_x_1", ""))
}

func TestRandomTokenLength(t *testing.T) {
	t.Parallel()

	require.Len(t, RandomToken(2), 4)
	require.NotEqual(t, RandomToken(4), RandomToken(4))
}

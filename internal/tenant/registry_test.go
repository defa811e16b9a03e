package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDSNs(t *testing.T) {
	dsns, err := ParseDSNs("nairobi=postgres://u:p@h/nairobi; kisumu=postgres://u:p@h/kisumu")
	require.NoError(t, err)
	require.Len(t, dsns, 2)
	require.Equal(t, "postgres://u:p@h/nairobi", dsns["nairobi"])
}

func TestParseDSNsRejectsMalformed(t *testing.T) {
	_, err := ParseDSNs("nairobi")
	require.Error(t, err)

	_, err = ParseDSNs("nairobi=a;nairobi=b")
	require.Error(t, err)

	_, err = ParseDSNs("  ")
	require.Error(t, err)
}

func TestCodesStableOrder(t *testing.T) {
	reg := NewRegistry(map[string]string{"zulu": "z", "alpha": "a", "mike": "m"})
	require.Equal(t, []string{"alpha", "mike", "zulu"}, reg.Codes())
}

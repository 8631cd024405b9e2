package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPlatformAdmin(t *testing.T) {
	oldVal := confPlatformAdmins.LoadedValue
	confPlatformAdmins.LoadedValue = "10, 20,not-a-number,30"
	defer func() { confPlatformAdmins.LoadedValue = oldVal }()

	require.True(t, IsPlatformAdmin(10))
	require.True(t, IsPlatformAdmin(20))
	require.True(t, IsPlatformAdmin(30))
	require.False(t, IsPlatformAdmin(40))

	confPlatformAdmins.LoadedValue = ""
	require.False(t, IsPlatformAdmin(0))
}

package prom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	ports, err := parseRange("")
	require.NoError(t, err)
	require.Empty(t, ports)

	ports, err = parseRange("6001")
	require.NoError(t, err)
	require.Equal(t, []int{6001}, ports)

	ports, err = parseRange("6001-6004")
	require.NoError(t, err)
	require.Equal(t, []int{6001, 6002, 6003, 6004}, ports)

	_, err = parseRange("six-thousand")
	require.Error(t, err)
}

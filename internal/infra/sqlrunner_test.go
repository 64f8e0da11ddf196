package infra

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractMarker(t *testing.T) {
	query := `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
select 1;
`
	marker, body, err := extractMarker(query)
	require.NoError(t, err)
	require.Equal(t, "4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db", marker)
	require.Equal(t, "select 1;", body)
}

func TestExtractMarkerRejectsUntaggedQuery(t *testing.T) {
	_, _, err := extractMarker("select 1;")
	require.Error(t, err)
}

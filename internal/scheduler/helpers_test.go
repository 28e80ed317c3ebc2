package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/condition"
)

func mustNode(t *testing.T, raw string) condition.Node {
	t.Helper()
	var n condition.Node
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	return n
}

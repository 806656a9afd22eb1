package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestSurface(t *testing.T) {
	cases := map[string]string{
		"/api/admin/challenges":          "admin",
		"/api/v1/assist/ask":             "assist",
		"/api/v1/challenges/hello-world": "public",
		"/api/v1/health":                 "public",
		"/api/v1/submissions":            "learner",
		"/api/v1/challenges":             "public",
		"/api/v1/challenges/1/run":       "learner",
		"/api/v1/challenges/1/draft":     "learner",
	}
	for path, expected := range cases {
		surface, ok := requestSurface(path)
		require.True(t, ok, path)
		require.Equal(t, expected, surface, path)
	}

	_, ok := requestSurface("/metrics")
	require.False(t, ok)
}

func TestLatencyBucket(t *testing.T) {
	require.Equal(t, "<=25ms", latencyBucket(10*time.Millisecond))
	require.Equal(t, "<=500ms", latencyBucket(300*time.Millisecond))
	require.Equal(t, ">2s", latencyBucket(3*time.Second))
}

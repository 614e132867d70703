package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArtifactPath(t *testing.T) {
	t.Parallel()

	p, err := ArtifactPath("p-1", "seo-report.pdf")
	require.NoError(t, err)
	require.Equal(t, "p-1/seo-report.pdf", p)

	id, file, err := SplitArtifactPath(p)
	require.NoError(t, err)
	require.Equal(t, "p-1", id)
	require.Equal(t, "seo-report.pdf", file)

	for _, bad := range [][2]string{{"", "a.pdf"}, {"p", ""}, {"..", "a.pdf"}, {"p", "../a.pdf"}, {"a/b", "c.pdf"}} {
		_, err := ArtifactPath(bad[0], bad[1])
		require.ErrorIs(t, err, ErrInvalidPath, bad)
	}
	for _, bad := range []string{"", "a.pdf", "a/b/c.pdf", "../x.pdf", "p/"} {
		_, _, err := SplitArtifactPath(bad)
		require.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

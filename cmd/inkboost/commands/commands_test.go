package commands

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/inkboost/internal/assemble"
	"github.com/local/inkboost/internal/raster"
	"github.com/local/inkboost/internal/style"
)

func writeSample(t *testing.T, pages int) string {
	t.Helper()
	imgs := make([]image.Image, pages)
	for i := range imgs {
		img := image.NewGray(image.Rect(0, 0, 30, 30))
		for j := range img.Pix {
			img.Pix[j] = 0xf0
		}
		imgs[i] = img
	}
	var buf bytes.Buffer
	require.NoError(t, assemble.PDFEncoder{DPI: 72}.Encode(&buf, imgs))
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPagesCommand(t *testing.T) {
	in := writeSample(t, 3)
	out, err := run(t, "pages", in)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestEnhanceCommand(t *testing.T) {
	in := writeSample(t, 3)
	out, err := run(t, "enhance", in, "--preview", "2", "--dpi", "72", "--ink", "blue", "--quiet")
	require.NoError(t, err)

	dst := filepath.Join(filepath.Dir(in), "enhanced_notes.pdf")
	assert.True(t, strings.HasPrefix(out, "wrote "+dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	n, err := raster.PageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnhanceWithProgressBar(t *testing.T) {
	in := writeSample(t, 2)
	dst := filepath.Join(t.TempDir(), "out.pdf")
	_, err := run(t, "enhance", in, "-o", dst, "--dpi", "72")
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.NoError(t, err)
}

func TestEnhanceRejectsBadFlags(t *testing.T) {
	in := writeSample(t, 1)
	_, err := run(t, "enhance", in, "--ink", "chartreuse", "-q")
	assert.ErrorIs(t, err, style.ErrInvalid)

	_, err = run(t, "enhance", in, "--thickness", "0", "-q")
	assert.ErrorIs(t, err, style.ErrInvalid)

	_, err = run(t, "enhance", in, "--preview", "-1", "-q")
	assert.Error(t, err)

	_, err = run(t, "enhance", filepath.Join(t.TempDir(), "missing.pdf"), "-q")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnhanceOptionsStyle(t *testing.T) {
	opts := &enhanceOptions{thickness: 5, ink: "#102030", bg: "beige", keepBackground: true, contrast: 2, threshold: "otsu"}
	st, err := opts.style()
	require.NoError(t, err)
	assert.Equal(t, style.RGB{R: 0x10, G: 0x20, B: 0x30}, st.Ink)
	assert.Equal(t, style.RGB{R: 245, G: 245, B: 220}, st.Background)
	assert.False(t, st.RemoveBackground)
	assert.Equal(t, style.ThresholdOtsu, st.Threshold)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "enhanced_b.pdf"), outputPath(filepath.Join("a", "b.pdf"), ""))
	assert.Equal(t, "x.pdf", outputPath("b.pdf", "x.pdf"))
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eggsplit/internal/models"
	"eggsplit/pkg/config"
	"eggsplit/pkg/export"
	"eggsplit/pkg/logging"
	"eggsplit/pkg/nifti"
)

// writeScan stores a 40^3 scan with one bright cube and returns its path.
func writeScan(t *testing.T, path string) string {
	t.Helper()
	vol := models.NewVolume(40, 40, 40)
	for z := 10; z < 30; z++ {
		for y := 12; y < 28; y++ {
			for x := 8; x < 32; x++ {
				vol.Set(z, y, x, 500)
			}
		}
	}
	require.NoError(t, nifti.Write(path, nifti.NewHeader(vol), vol))
	return path
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	scan := writeScan(t, filepath.Join(dir, "tray.nii.gz"))
	out := filepath.Join(dir, "eggs")
	logDir := filepath.Join(dir, "logs")

	err := newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", logDir,
		"run", "-i", scan, "-o", out, "-n", "1", "--previews", "--slices"})
	require.NoError(t, err)

	for _, name := range []string{"egg_1.nii", "egg_1_preview.png", "egg_1_slices", export.ManifestName} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	m, err := export.ReadManifest(filepath.Join(out, export.ManifestName))
	require.NoError(t, err)
	assert.Equal(t, 1, m.DetectedEggs)

	logData, err := os.ReadFile(filepath.Join(logDir, logging.LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "eggsplit.segmentation")
}

func TestRunCommandUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	scan := writeScan(t, filepath.Join(dir, "tray.nii"))

	cfg := config.DefaultConfig()
	cfg.Paths.InputPath = scan
	cfg.Paths.OutputDir = filepath.Join(dir, "from-config")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Parameters.ExpectedEggCount = 1
	cfg.Logging.Console = false
	cfg.Output.Compress = true
	cfg.Output.Manifest = false
	cfgPath := filepath.Join(dir, "eggsplit.toml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	require.NoError(t, newApp().Run([]string{"eggsplit", "-c", cfgPath, "run"}))

	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "egg_1.nii.gz", entries[0].Name())
}

func TestRunCommandRejectsBadParameters(t *testing.T) {
	dir := t.TempDir()
	err := newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", dir,
		"run", "-i", filepath.Join(dir, "x.nii"), "--row-tolerance", "0"})
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	err = newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", dir,
		"run", "-i", filepath.Join(dir, "missing.nii"), "-o", filepath.Join(dir, "out")})
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	first := writeScan(t, filepath.Join(dir, "tray_a.nii"))
	second := writeScan(t, filepath.Join(dir, "tray_b.nii.gz"))
	out := filepath.Join(dir, "eggs")

	err := newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", filepath.Join(dir, "logs"),
		"batch", "-o", out, "-n", "1", "-j", "2", first, second})
	require.NoError(t, err)

	for _, name := range []string{"tray_a", "tray_b"} {
		_, err := os.Stat(filepath.Join(out, name, "egg_1.nii"))
		assert.NoError(t, err, name)
	}
}

func TestBatchCommandErrors(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")

	err := newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", logDir, "batch"})
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	err = newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", logDir,
		"batch", "a/tray.nii", "b/tray.nii.gz"})
	assert.Equal(t, models.KindValidation, models.KindOf(err), "colliding output directories")

	good := writeScan(t, filepath.Join(dir, "good.nii"))
	err = newApp().Run([]string{"eggsplit", "--quiet", "--log-dir", logDir,
		"batch", "-o", filepath.Join(dir, "eggs"), "-n", "1", good, filepath.Join(dir, "gone.nii")})
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "eggsplit.yaml")
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf

	require.NoError(t, app.Run([]string{"eggsplit", "init-config", path}))
	assert.Contains(t, buf.String(), path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestScanName(t *testing.T) {
	assert.Equal(t, "tray_01", scanName("/data/tray_01.nii.gz"))
	assert.Equal(t, "tray_01", scanName("tray_01.NII"))
	assert.Equal(t, "scan", scanName("scan.img"))
}

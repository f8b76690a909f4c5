package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	def, ok := cfg.StatusByName(cfg.DefaultStatus)
	require.True(t, ok)
	assert.Equal(t, "New", def.Name)
	assert.False(t, def.IsTerminal)
	assert.Equal(t, time.Minute, cfg.ReminderInterval())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no statuses":      "default_status: New\n",
		"duplicate id":     "statuses:\n  - {id: 1, name: New}\n  - {id: 1, name: Other}\ndefault_status: New\n",
		"duplicate name":   "statuses:\n  - {id: 1, name: New}\n  - {id: 2, name: new}\ndefault_status: New\n",
		"all terminal":     "statuses:\n  - {id: 1, name: Done, terminal: true}\ndefault_status: Done\n",
		"unknown default":  "statuses:\n  - {id: 1, name: New}\ndefault_status: Open\n",
		"terminal default": "statuses:\n  - {id: 1, name: New}\n  - {id: 2, name: Done, terminal: true}\ndefault_status: Done\n",
		"bad interval":     "statuses:\n  - {id: 1, name: New}\ndefault_status: New\nreminders:\n  interval: soon\n",
		"webhook no url":   "statuses:\n  - {id: 1, name: New}\ndefault_status: New\nreminders:\n  webhooks:\n    - enabled: true\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Len(t, cfg.Statuses, 5)

	doc := "statuses:\n  - {id: 7, name: Open, order: 1}\n  - {id: 8, name: Closed, order: 2, terminal: true}\ndefault_status: open\nstorage:\n  root: files\n"
	require.NoError(t, os.WriteFile(Path(dir), []byte(doc), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Len(t, cfg.Statuses, 2)
	assert.Equal(t, filepath.Join(dir, "files"), cfg.StorageRoot(dir))

	require.NoError(t, os.WriteFile(Path(dir), []byte("statuses: [\n"), 0o644))
	_, err = LoadOptional(dir)
	assert.Error(t, err)
}

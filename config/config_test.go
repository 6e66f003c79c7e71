package config

import (
	"os"
	"path"
	"testing"

	"go-blockdb/pkg/block"
	"go-blockdb/pkg/bptree"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	fileName := path.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(fileName, []byte(`{
		"db_path": "/tmp/bank.data",
		"storage": {"block_size": 8192},
		"tree": {"min_entries_per_node": 8},
		"shell": {"prompt": "> "}
	}`), 0644))

	cfg, err := Load(fileName)
	require.NoError(t, err)
	require.Equal(t, "/tmp/bank.data", cfg.DBPath)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 8192, cfg.Storage.BlockSize)
	require.Equal(t, block.DefaultOptions.BlockHeaderSize, cfg.Storage.BlockHeaderSize)
	require.Equal(t, 8, cfg.Tree.MinEntriesPerNode)
	require.Equal(t, bptree.DefaultSettings.MaxCacheSize, cfg.Tree.MaxCacheSize)
	require.Equal(t, "> ", cfg.Shell.Prompt)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	fileName := path.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(fileName, []byte("{"), 0644))
	_, err = Load(fileName)
	require.Error(t, err)
}

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	log, err := New(Settings{NoFile: true, Level: "debug"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNew_DefaultsToInfo(t *testing.T) {
	log, err := New(Settings{NoFile: true})
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Settings{NoFile: true, Level: "loud"})
	require.Error(t, err)
}

func TestNew_FileModeCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := New(Settings{Dir: dir})
	require.NoError(t, err)
	require.DirExists(t, dir)

	log.Info("hello file sink")
	require.FileExists(t, filepath.Join(dir, "disksync.log"))

	data, err := os.ReadFile(filepath.Join(dir, "disksync.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "hello file sink")
}

func TestNew_FileModeRequiresDir(t *testing.T) {
	_, err := New(Settings{})
	require.Error(t, err)
}

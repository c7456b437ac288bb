package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/plugin/loader"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

var errBrokenPlugin = errors.New("broken plugin")

type noopPlugin struct{}

func (noopPlugin) Name() string                                            { return "noop" }
func (noopPlugin) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }
func (noopPlugin) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	return pluginapi.ActionContinue, nil, nil
}
func (noopPlugin) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
func (noopPlugin) Shutdown(ctx context.Context) error { return nil }

func TestLoadResolvesBuiltinByBaseName(t *testing.T) {
	builtins := loader.BuiltinRegistry{
		"noop": func(raw map[string]string) (pluginapi.Plugin, error) {
			return noopPlugin{}, nil
		},
	}
	ld := loader.New(t.TempDir(), builtins)

	p, err := ld.Load("noop", nil)
	require.NoError(t, err)
	require.Equal(t, "noop", p.Name())
}

func TestLoadPropagatesBuiltinConstructorError(t *testing.T) {
	builtins := loader.BuiltinRegistry{
		"broken": func(raw map[string]string) (pluginapi.Plugin, error) {
			return nil, errBrokenPlugin
		},
	}
	ld := loader.New(t.TempDir(), builtins)
	_, err := ld.Load("broken", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, errBrokenPlugin)
}

func TestLoadRejectsNonFileLibraryURI(t *testing.T) {
	ld := loader.New(t.TempDir(), loader.BuiltinRegistry{})
	_, err := ld.Load("https://example.com/plugin.so", nil)
	require.Error(t, err)
}

func TestLoadRejectsMissingDynamicLibrary(t *testing.T) {
	dir := t.TempDir()
	ld := loader.New(dir, loader.BuiltinRegistry{})
	_, err := ld.Load("file://missing-plugin", nil)
	require.Error(t, err)
}

func TestWatchDirNotifiesOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan string, 1)
	ld := loader.New(dir, loader.BuiltinRegistry{}, loader.WithChangeHandler(func(path string) {
		select {
		case changed <- path:
		default:
		}
	}))

	require.NoError(t, ld.WatchDir())
	defer ld.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.so"), []byte("x"), 0o644))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification after file create")
	}
}

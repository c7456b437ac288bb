package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/config"
)

const validConfig = `
<html><body>
<div itemscope itemtype="ServerConfig">
  <span itemprop="bindAddress">0.0.0.0</span>
  <span itemprop="bindPort">8080</span>
</div>
<div itemscope itemtype="HostConfig">
  <span itemprop="hostname">example.test</span>
  <span itemprop="hostRoot">/srv/example</span>
  <div itemprop="plugin" itemscope itemtype="PluginConfig">
    <span itemprop="library">file:///selector-handler</span>
    <span itemprop="name">selector-handler</span>
  </div>
</div>
</body></html>
`

func TestLoadBytesValidConfig(t *testing.T) {
	sc, err := config.LoadBytes([]byte(validConfig))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", sc.BindAddress)
	require.Equal(t, 8080, sc.BindPort)
	require.Len(t, sc.Hosts, 1)

	host := sc.Hosts[0]
	require.Equal(t, "example.test", host.Hostname)
	require.Len(t, host.Plugins, 1)
	require.Equal(t, "file:///selector-handler", host.Plugins[0].LibraryURI)
}

func TestLoadBytesMissingServerConfigFails(t *testing.T) {
	_, err := config.LoadBytes([]byte(`<html><body></body></html>`))
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadBytesDuplicateHostnameFails(t *testing.T) {
	const dup = `
<html><body>
<div itemscope itemtype="ServerConfig">
  <span itemprop="bindAddress">0.0.0.0</span>
  <span itemprop="bindPort">8080</span>
</div>
<div itemscope itemtype="HostConfig">
  <span itemprop="hostname">dup.test</span>
  <span itemprop="hostRoot">/srv/a</span>
</div>
<div itemscope itemtype="HostConfig">
  <span itemprop="hostname">DUP.test</span>
  <span itemprop="hostRoot">/srv/b</span>
</div>
</body></html>
`
	_, err := config.LoadBytes([]byte(dup))
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadBytesPluginMissingLibraryFails(t *testing.T) {
	const bad = `
<html><body>
<div itemscope itemtype="ServerConfig">
  <span itemprop="bindAddress">0.0.0.0</span>
  <span itemprop="bindPort">8080</span>
</div>
<div itemscope itemtype="HostConfig">
  <span itemprop="hostname">example.test</span>
  <span itemprop="hostRoot">/srv/example</span>
  <div itemprop="plugin" itemscope itemtype="PluginConfig">
    <span itemprop="name">broken</span>
  </div>
</div>
</body></html>
`
	_, err := config.LoadBytes([]byte(bad))
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestNormalizeHostname(t *testing.T) {
	require.Equal(t, "example.test", config.NormalizeHostname("EXAMPLE.test:8080"))
}

// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package appconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

const tomlConfig = `
profile = true

[logging]
level = "debug"
format = "json"

[server]
ip = "127.0.0.1"
port = 4000

[transport]
window-segments = 8
checksum = true
initial-rtt = "150ms"
linger = "2s"

[discovery]
enabled = true
service = "demo"
`

const yamlConfig = `
logging:
  level: info
server:
  ip: "::1"
  port: 5000
transport:
  window-segments: 4
  handshake-attempts: 3
  stall-timeout: 30s
client:
  file: /etc/hostname
  watch-dir: /tmp/outbox
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadToml(t *testing.T) {
	t.Setenv(EnvServerIP, "")
	t.Setenv(EnvServerPort, "")

	conf, err := Load(writeFile(t, "conf.toml", tomlConfig))
	if err != nil {
		t.Fatal(err)
	}

	if !conf.Profile || conf.Logging.Level != "debug" || conf.Logging.Format != "json" {
		t.Fatalf("unexpected configuration %+v", conf)
	}
	if conf.Server.IP != "127.0.0.1" || conf.Server.Port != 4000 || conf.Server.Output != "/tmp/file.c" {
		t.Fatalf("unexpected server configuration %+v", conf.Server)
	}
	if !conf.Discovery.Enabled || conf.Discovery.Service != "demo" || !conf.Discovery.IPv4 {
		t.Fatalf("unexpected discovery configuration %+v", conf.Discovery)
	}

	c, err := conf.CMUTCP()
	if err != nil {
		t.Fatal(err)
	}
	if c.WindowSegments != 8 || !c.Checksum || c.InitialRTT != 150*time.Millisecond || c.Linger != 2*time.Second {
		t.Fatalf("unexpected connection configuration %+v", c)
	}
	if c.HandshakeAttempts != 10 {
		t.Fatalf("default handshake attempts were overwritten: %d", c.HandshakeAttempts)
	}
}

func TestLoadYaml(t *testing.T) {
	t.Setenv(EnvServerIP, "")
	t.Setenv(EnvServerPort, "")

	conf, err := Load(writeFile(t, "conf.yml", yamlConfig))
	if err != nil {
		t.Fatal(err)
	}

	if conf.Server.IP != "::1" || conf.Server.Port != 5000 {
		t.Fatalf("unexpected server configuration %+v", conf.Server)
	}
	if conf.Client.File != "/etc/hostname" || conf.Client.WatchDir != "/tmp/outbox" {
		t.Fatalf("unexpected client configuration %+v", conf.Client)
	}

	c, err := conf.CMUTCP()
	if err != nil {
		t.Fatal(err)
	}
	if c.WindowSegments != 4 || c.HandshakeAttempts != 3 || c.StallTimeout != 30*time.Second {
		t.Fatalf("unexpected connection configuration %+v", c)
	}
}

func TestLoadUnsupported(t *testing.T) {
	for _, name := range []string{"conf.ini", "conf"} {
		if _, err := Load(writeFile(t, name, "")); err == nil {
			t.Fatalf("loaded %s", name)
		}
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Setenv(EnvServerIP, "")
	t.Setenv(EnvServerPort, "")

	conf, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if conf.Server.IP != defaultServerIP || conf.Server.Port != defaultServerPort {
		t.Fatalf("unexpected server configuration %+v", conf.Server)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		env  map[string]string
		ip   string
		port int
		err  bool
	}{
		{map[string]string{}, defaultServerIP, defaultServerPort, false},
		{map[string]string{EnvServerIP: "10.0.1.2"}, "10.0.1.2", defaultServerPort, false},
		{map[string]string{EnvServerPort: "4711"}, defaultServerIP, 4711, false},
		{map[string]string{EnvServerPort: "70000"}, defaultServerIP, defaultServerPort, true},
		{map[string]string{EnvServerPort: "port"}, defaultServerIP, defaultServerPort, true},
	}

	for _, test := range tests {
		conf := Default()
		err := conf.applyEnv(func(key string) (string, bool) {
			value, ok := test.env[key]
			return value, ok
		})

		if (err != nil) != test.err {
			t.Fatalf("%v: unexpected error state %v", test.env, err)
		}
		if conf.Server.IP != test.ip || conf.Server.Port != test.port {
			t.Fatalf("%v: server is %s:%d", test.env, conf.Server.IP, conf.Server.Port)
		}
	}
}

func TestCMUTCPInvalidDurations(t *testing.T) {
	conf := Default()
	conf.Transport.InitialRTT = "fast"
	conf.Transport.Linger = "forever"

	_, err := conf.CMUTCP()

	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("expected two errors, got %v", err)
	}
}

func TestMonitorInterval(t *testing.T) {
	conf := Default()
	if d := conf.MonitorInterval(); d != time.Second {
		t.Fatalf("default interval is %v", d)
	}

	conf.Monitor.Interval = "250ms"
	if d := conf.MonitorInterval(); d != 250*time.Millisecond {
		t.Fatalf("interval is %v", d)
	}
}

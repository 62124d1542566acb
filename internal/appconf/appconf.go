// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package appconf loads the configuration shared by the cmutcp-server and cmutcp-client programs.
//
// A configuration is read from a TOML or YAML file, selected by the file extension. Afterwards, the environment
// variables server15441 and serverport15441 override the server's address.
package appconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/neptune-me/computer-network-pj2/pkg/cmutcp"
)

const (
	// EnvServerIP names the environment variable of the server's IP address.
	EnvServerIP = "server15441"

	// EnvServerPort names the environment variable of the server's port.
	EnvServerPort = "serverport15441"

	defaultServerIP   = "10.0.1.1"
	defaultServerPort = 15441
)

// Config of a program.
type Config struct {
	Logging   LogConf       `toml:"logging" yaml:"logging"`
	Server    ServerConf    `toml:"server" yaml:"server"`
	Transport TransportConf `toml:"transport" yaml:"transport"`
	Trace     TraceConf     `toml:"trace" yaml:"trace"`
	Discovery DiscoveryConf `toml:"discovery" yaml:"discovery"`
	Monitor   MonitorConf   `toml:"monitor" yaml:"monitor"`
	Client    ClientConf    `toml:"client" yaml:"client"`
	Profile   bool          `toml:"profile" yaml:"profile"`
}

// LogConf describes the Logging-configuration block.
type LogConf struct {
	Level        string `toml:"level" yaml:"level"`
	ReportCaller bool   `toml:"report-caller" yaml:"report-caller"`
	Format       string `toml:"format" yaml:"format"`
}

// ServerConf describes where the Listener binds and the Initiator connects to.
type ServerConf struct {
	IP   string `toml:"ip" yaml:"ip"`
	Port int    `toml:"port" yaml:"port"`

	// Output receives the bulk data of the demo exchange.
	Output string `toml:"output" yaml:"output"`
}

// TransportConf overrides cmutcp.DefaultConfig. Durations are strings as understood by time.ParseDuration; empty
// or zero values keep the default.
type TransportConf struct {
	WindowSegments    int    `toml:"window-segments" yaml:"window-segments"`
	Checksum          bool   `toml:"checksum" yaml:"checksum"`
	InitialRTT        string `toml:"initial-rtt" yaml:"initial-rtt"`
	RetransmitCeiling string `toml:"retransmit-ceiling" yaml:"retransmit-ceiling"`
	HandshakeTimeout  string `toml:"handshake-timeout" yaml:"handshake-timeout"`
	HandshakeAttempts int    `toml:"handshake-attempts" yaml:"handshake-attempts"`
	PollInterval      string `toml:"poll-interval" yaml:"poll-interval"`
	ReadTimeout       string `toml:"read-timeout" yaml:"read-timeout"`
	StallTimeout      string `toml:"stall-timeout" yaml:"stall-timeout"`
	Linger            string `toml:"linger" yaml:"linger"`
	MaxBuffer         int    `toml:"max-buffer" yaml:"max-buffer"`
}

// TraceConf describes the optional packet capture.
type TraceConf struct {
	File string `toml:"file" yaml:"file"`
}

// DiscoveryConf describes the LAN discovery of Listeners.
type DiscoveryConf struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Service  string `toml:"service" yaml:"service"`
	IPv4     bool   `toml:"ipv4" yaml:"ipv4"`
	IPv6     bool   `toml:"ipv6" yaml:"ipv6"`
	Interval uint   `toml:"interval" yaml:"interval"`
}

// MonitorConf describes the HTTP statistics endpoint.
type MonitorConf struct {
	Listen   string `toml:"listen" yaml:"listen"`
	Interval string `toml:"interval" yaml:"interval"`
}

// ClientConf describes the Initiator's demo exchange.
type ClientConf struct {
	// File is sent after the greeting, if not empty.
	File string `toml:"file" yaml:"file"`
	// WatchDir is watched for new files, which are sent as well, until an interrupt.
	WatchDir string `toml:"watch-dir" yaml:"watch-dir"`
}

// Default configuration without any file.
func Default() Config {
	return Config{
		Server: ServerConf{
			IP:     defaultServerIP,
			Port:   defaultServerPort,
			Output: "/tmp/file.c",
		},
		Discovery: DiscoveryConf{
			Service:  "cmutcp-server",
			IPv4:     true,
			Interval: 10,
		},
		Monitor: MonitorConf{
			Interval: "1s",
		},
	}
}

// Load a configuration file on top of the Default configuration and apply the environment. An empty filename only
// applies the environment.
func Load(filename string) (conf Config, err error) {
	conf = Default()

	switch ext := filepath.Ext(filename); ext {
	case "":
		if filename != "" {
			err = fmt.Errorf("configuration file %s has no extension", filename)
			return
		}

	case ".toml":
		if _, err = toml.DecodeFile(filename, &conf); err != nil {
			return
		}

	case ".yaml", ".yml":
		f, fErr := os.Open(filename)
		if fErr != nil {
			err = fErr
			return
		}
		defer func() { _ = f.Close() }()

		if err = yaml.NewDecoder(f).Decode(&conf); err != nil {
			return
		}

	default:
		err = fmt.Errorf("unsupported configuration format %s", ext)
		return
	}

	err = conf.applyEnv(os.LookupEnv)
	return
}

// applyEnv overrides the server's address by the environment variables, if set.
func (conf *Config) applyEnv(lookup func(string) (string, bool)) error {
	if ip, ok := lookup(EnvServerIP); ok && ip != "" {
		conf.Server.IP = ip
	}

	if portStr, ok := lookup(EnvServerPort); ok && portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return fmt.Errorf("%s=%q is no valid port: %v", EnvServerPort, portStr, err)
		}
		conf.Server.Port = int(port)
	}

	return nil
}

// durationField parses a duration into dst, unless the value is empty.
func durationField(name, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("transport.%s: %v", name, err)
	}
	*dst = d
	return nil
}

// CMUTCP creates the connection configuration. Every unparsable duration is reported.
func (conf Config) CMUTCP() (c cmutcp.Config, err error) {
	t := conf.Transport
	c = cmutcp.DefaultConfig()

	if t.WindowSegments != 0 {
		c.WindowSegments = t.WindowSegments
	}
	c.Checksum = t.Checksum
	if t.HandshakeAttempts != 0 {
		c.HandshakeAttempts = t.HandshakeAttempts
	}
	if t.MaxBuffer != 0 {
		c.MaxBuffer = t.MaxBuffer
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"initial-rtt", t.InitialRTT, &c.InitialRTT},
		{"retransmit-ceiling", t.RetransmitCeiling, &c.RetransmitCeiling},
		{"handshake-timeout", t.HandshakeTimeout, &c.HandshakeTimeout},
		{"poll-interval", t.PollInterval, &c.PollInterval},
		{"read-timeout", t.ReadTimeout, &c.ReadTimeout},
		{"stall-timeout", t.StallTimeout, &c.StallTimeout},
		{"linger", t.Linger, &c.Linger},
	}
	for _, d := range durations {
		if dErr := durationField(d.name, d.value, d.dst); dErr != nil {
			err = multierror.Append(err, dErr)
		}
	}
	if err != nil {
		return
	}

	err = c.Validate()
	return
}

// MonitorInterval is the period of the monitor's WebSocket snapshots.
func (conf Config) MonitorInterval() time.Duration {
	if d, err := time.ParseDuration(conf.Monitor.Interval); err == nil && d > 0 {
		return d
	}
	return time.Second
}

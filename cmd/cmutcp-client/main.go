// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// cmutcp-client is the demo Initiator. It greets the server, sends a couple of URLs and finally bulk data from a
// file and from files dropped into a watched directory.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"

	"github.com/neptune-me/computer-network-pj2/internal/appconf"
	"github.com/neptune-me/computer-network-pj2/pkg/cmutcp"
	"github.com/neptune-me/computer-network-pj2/pkg/discovery"
)

var greetings = []string{
	"hi there",
	" https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	" https://www.youtube.com/watch?v=Yb6dZ1IFlKc",
	" https://www.youtube.com/watch?v=xvFZjo5PgG0",
	" https://www.youtube.com/watch?v=8ybW48rKBME",
	" https://www.youtube.com/watch?v=xfr64zoBTAQ\x00",
}

// functionality is the client's side of the demo exchange.
func functionality(conn *cmutcp.Conn, file string) error {
	buf := make([]byte, 9898)

	for _, greeting := range greetings {
		if _, err := conn.Write([]byte(greeting)); err != nil {
			return err
		}
	}

	if _, err := conn.Read(buf[:200]); err != nil {
		return err
	}

	if _, err := conn.Write([]byte("hi there\x00")); err != nil {
		return err
	}

	n, err := conn.Read(buf[:200])
	if err != nil {
		return err
	}
	msg := buf[:n]
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	fmt.Printf("R: %s\n", msg)

	n, err = conn.ReadMode(buf[:200], cmutcp.ReadNoWait)
	if err != nil {
		return err
	}
	fmt.Printf("Read: %d\n", n)

	if file == "" {
		return nil
	}
	return sendFile(conn, file)
}

// sendFile writes a file's content in chunks of 2000 bytes.
func sendFile(conn io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	n, err := io.CopyBuffer(struct{ io.Writer }{conn}, struct{ io.Reader }{f}, make([]byte, 2000))
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"file":  name,
		"bytes": n,
	}).Info("Sent file")
	return nil
}

// locate the server, either by discovery or by the configured address.
func locate(ctx context.Context, conf appconf.Config, config *cmutcp.Config) (ip string, port int, err error) {
	if !conf.Discovery.Enabled {
		return conf.Server.IP, conf.Server.Port, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	peer, err := discovery.Lookup(lookupCtx, conf.Discovery.Service, conf.Discovery.IPv4, conf.Discovery.IPv6)
	if err != nil {
		return
	}

	log.WithFields(log.Fields{
		"service": peer.Service,
		"address": peer.Address(),
	}).Info("Discovered server")

	config.Checksum = peer.Checksum
	return peer.Host, int(peer.Port), nil
}

func run(confFile string) error {
	conf, err := appconf.Load(confFile)
	if err != nil {
		return err
	}
	conf.Logging.SetupLogging()

	if conf.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	config, closeTrace, err := conf.Connection()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeTrace(); err != nil {
			log.WithError(err).Warn("Closing the packet trace errored")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ip, port, err := locate(ctx, conf, &config)
	if err != nil {
		return err
	}

	conn, err := cmutcp.Open(ctx, cmutcp.Initiator, ip, port, config)
	if err != nil {
		return err
	}

	if mon := conf.StartMonitor(); mon != nil {
		mon.Register("client", conn)
		defer func() { _ = mon.Close() }()
	}

	funcErr := functionality(conn, conf.Client.File)
	if funcErr == nil && conf.Client.WatchDir != "" {
		funcErr = watch(ctx, conn, conf.Client.WatchDir)
	}

	if closeErr := conn.Close(); funcErr == nil {
		funcErr = closeErr
	}

	log.WithField("stats", conn.Stats()).Info("Connection finished")
	return funcErr
}

func main() {
	var confFile string
	switch len(os.Args) {
	case 1:
	case 2:
		confFile = os.Args[1]
	default:
		log.Fatalf("Usage: %s [configuration.toml|configuration.yaml]", os.Args[0])
	}

	if err := run(confFile); err != nil {
		log.WithError(err).Fatal("Client failed")
	}
}

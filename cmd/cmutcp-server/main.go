// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// cmutcp-server is the demo Listener. It exchanges greetings with the first Initiator and stores all bulk data
// received afterwards in the configured output file.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"

	"github.com/neptune-me/computer-network-pj2/internal/appconf"
	"github.com/neptune-me/computer-network-pj2/pkg/cmutcp"
)

const bufSize = 10000

// printRead prints a received message up to its first NUL byte.
func printRead(buf []byte, n int) {
	msg := buf[:n]
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	fmt.Printf("R: %s\n", msg)
	fmt.Printf("N: %d\n", n)
}

// functionality is the server's side of the demo exchange.
func functionality(conn *cmutcp.Conn, output string) error {
	buf := make([]byte, bufSize)

	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	printRead(buf, n)

	if _, err := conn.Write([]byte("hi there\x00")); err != nil {
		return err
	}

	if n, err = conn.Read(buf[:200]); err != nil {
		return err
	}
	printRead(buf, n)

	if _, err := conn.Write([]byte("https://www.youtube.com/watch?v=dQw4w9WgXcQ\x00")); err != nil {
		return err
	}

	time.Sleep(time.Second)

	f, err := os.Create(output)
	if err != nil {
		return err
	}

	total, copyErr := copyUntilQuiet(f, conn, buf)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	fmt.Printf("N: %d\n", total)

	return copyErr
}

// copyUntilQuiet copies from conn to w until a read times out or the connection ends.
func copyUntilQuiet(w io.Writer, conn *cmutcp.Conn, buf []byte) (total int, err error) {
	for {
		n, rErr := conn.ReadMode(buf, cmutcp.ReadTimeout)
		if n > 0 {
			if _, err = w.Write(buf[:n]); err != nil {
				return
			}
			total += n
		}

		switch {
		case rErr == nil:
			continue
		case errors.Is(rErr, cmutcp.ErrTimeout), rErr == io.EOF:
			return
		default:
			err = rErr
			return
		}
	}
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

	register := func(*cmutcp.Conn) {}
	if mon := conf.StartMonitor(); mon != nil {
		defer func() { _ = mon.Close() }()
		register = func(conn *cmutcp.Conn) { mon.Register("server", conn) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, conf, config, register)
}

func serve(ctx context.Context, conf appconf.Config, config cmutcp.Config, register func(*cmutcp.Conn)) error {
	manager, err := conf.Announce()
	if err != nil {
		return err
	} else if manager != nil {
		defer manager.Close()
	}

	log.WithFields(log.Fields{
		"ip":   conf.Server.IP,
		"port": conf.Server.Port,
	}).Info("Waiting for an Initiator")

	conn, err := cmutcp.Open(ctx, cmutcp.Listener, conf.Server.IP, conf.Server.Port, config)
	if err != nil {
		return err
	}
	register(conn)

	funcErr := functionality(conn, conf.Server.Output)
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
		log.WithError(err).Fatal("Server failed")
	}
}

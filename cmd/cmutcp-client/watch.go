// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"io"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
)

// watch a directory and send each newly created file until the context is done.
func watch(ctx context.Context, conn io.Writer, directory string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(directory); err != nil {
		return err
	}

	log.WithField("directory", directory).Info("Watching for files to send")

	for {
		select {
		case <-ctx.Done():
			log.Info("Received interrupt signal")
			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return nil
			}

			if e.Op&fsnotify.Create == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			if err := sendNewFile(conn, e.Name); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return nil
			}
			return err
		}
	}
}

// sendNewFile retries with an exponential backoff, because a new file might still be written.
func sendNewFile(conn io.Writer, name string) (err error) {
	for i := 0; i < 5; i++ {
		// Give the writer of the file a head start.
		time.Sleep(time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond)

		if err = sendFile(conn, name); err == nil {
			return
		}
		log.WithError(err).WithField("file", name).Warn("Sending file errored, retrying..")
	}

	log.WithField("file", name).Error("Failed to process file, giving up.")
	return
}

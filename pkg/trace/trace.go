// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package trace writes the datagrams of CMU-TCP connections into pcap files.
//
// Each datagram is wrapped into synthetic IPv4 or IPv6 and UDP headers, so that the capture can be inspected with
// common tools. Files ending in ".xz" are compressed.
package trace

import (
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// snapLen is the largest datagram plus synthetic IPv6 and UDP headers.
const snapLen = 0xFFFF + 40 + 8

// Writer is a pcap trace sink; safe for concurrent use.
type Writer struct {
	mutex   sync.Mutex
	pw      *pcapgo.Writer
	closers []io.Closer
	packets int
}

// NewWriter writes a pcap stream into w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeRaw); err != nil {
		return nil, err
	}
	return &Writer{pw: pw}, nil
}

// Create a pcap file. If the name ends in ".xz", the file is xz compressed.
func Create(name string) (*Writer, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}

	var (
		out     io.Writer = f
		closers           = []io.Closer{f}
	)

	if strings.HasSuffix(name, ".xz") {
		xzW, xzErr := xz.NewWriter(f)
		if xzErr != nil {
			_ = f.Close()
			return nil, xzErr
		}
		out = xzW
		// The compressor must be flushed before the file is closed.
		closers = []io.Closer{xzW, f}
	}

	w, err := NewWriter(out)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closers = closers

	return w, nil
}

// udpAddr extracts the IP and port of an address; unknown addresses become the unspecified IPv4 address.
func udpAddr(addr net.Addr) (net.IP, int) {
	if udp, ok := addr.(*net.UDPAddr); ok && udp != nil {
		return udp.IP, udp.Port
	}
	return net.IPv4zero, 0
}

// Trace a datagram. The direction decides which address is the source.
func (w *Writer) Trace(outbound bool, local, remote net.Addr, datagram []byte) {
	src, dst := remote, local
	if outbound {
		src, dst = local, remote
	}

	data, err := encapsulate(src, dst, datagram)
	if err == nil {
		w.mutex.Lock()
		err = w.pw.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(data),
			Length:        len(data),
		}, data)
		if err == nil {
			w.packets++
		}
		w.mutex.Unlock()
	}

	if err != nil {
		log.WithFields(log.Fields{
			"src":   src,
			"dst":   dst,
			"error": err,
		}).Warn("Tracing a datagram failed")
	}
}

// encapsulate a datagram in IP and UDP headers.
func encapsulate(src, dst net.Addr, datagram []byte) ([]byte, error) {
	srcIP, srcPort := udpAddr(src)
	dstIP, dstPort := udpAddr(dst)

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}

	var network gopacket.SerializableLayer
	if srcIP.To4() != nil && dstIP.To4() != nil {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      srcIP.To16(),
			DstIP:      dstIP.To16(),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, network, udp, gopacket.Payload(datagram)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Packets returns the number of traced datagrams.
func (w *Writer) Packets() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.packets
}

// Close flushes and closes the underlying file, if created by Create.
func (w *Writer) Close() (err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, c := range w.closers {
		if cErr := c.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}
	w.closers = nil

	return
}

// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/ulikunitz/xz"

	"github.com/neptune-me/computer-network-pj2/pkg/packet"
)

// Record is a traced CMU-TCP packet.
type Record struct {
	Time   time.Time
	Src    *net.UDPAddr
	Dst    *net.UDPAddr
	Packet *packet.Packet
}

func (r Record) String() string {
	return fmt.Sprintf("%s %v -> %v %v", r.Time.Format("15:04:05.000000"), r.Src, r.Dst, r.Packet)
}

// ReadAll records of a pcap stream written by a Writer.
func ReadAll(r io.Reader) ([]Record, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}

	var records []Record
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return records, nil
		} else if err != nil {
			return records, err
		}

		record, err := decapsulate(data)
		if err != nil {
			return records, err
		}
		record.Time = ci.Timestamp
		records = append(records, record)
	}
}

// ReadFile reads the records of a pcap file, which may be xz compressed.
func ReadFile(name string) ([]Record, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var in io.Reader = f
	if strings.HasSuffix(name, ".xz") {
		xzR, xzErr := xz.NewReader(f)
		if xzErr != nil {
			return nil, xzErr
		}
		in = xzR
	}

	return ReadAll(in)
}

func decapsulate(data []byte) (record Record, err error) {
	if len(data) == 0 {
		err = errors.New("empty capture")
		return
	}

	first := layers.LayerTypeIPv4
	if data[0]>>4 == 6 {
		first = layers.LayerTypeIPv6
	}

	pkt := gopacket.NewPacket(data, first, gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		err = errLayer.Error()
		return
	}

	network := pkt.NetworkLayer()
	udpLayer, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if network == nil || !ok {
		err = errors.New("capture is no UDP datagram")
		return
	}

	var srcIP, dstIP net.IP
	switch ip := network.(type) {
	case *layers.IPv4:
		srcIP, dstIP = ip.SrcIP, ip.DstIP
	case *layers.IPv6:
		srcIP, dstIP = ip.SrcIP, ip.DstIP
	}

	record.Src = &net.UDPAddr{IP: srcIP, Port: int(udpLayer.SrcPort)}
	record.Dst = &net.UDPAddr{IP: dstIP, Port: int(udpLayer.DstPort)}
	record.Packet, err = packet.Parse(udpLayer.Payload)
	return
}

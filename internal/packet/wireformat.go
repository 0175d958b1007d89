package packet

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/netsimio/vnet/internal/addr"
)

// ToEthernetLayers renders p as a real Ethernet/IPv4/TCP-or-UDP byte
// capture, so a scenario can cross-check the simulator's abstract Packet
// against what an actual NIC would have put on the wire. Grounded near
// verbatim on common/go/xpacket/packet.go's LayersToPacketChecked.
func ToEthernetLayers(p *Packet) (gopacket.Packet, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    addrToIP(p.Src.Addr),
		DstIP:    addrToIP(p.Dst.Addr),
		Protocol: protocolNumber(p.Protocol),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var transport gopacket.SerializableLayer
	switch p.Protocol {
	case Stream:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(p.Src.Port),
			DstPort: layers.TCPPort(p.Dst.Port),
			Window:  16 << 10,
		}
		if h := p.TCP; h != nil {
			tcp.Seq = h.Seq
			tcp.Ack = h.Ack
			tcp.Window = uint16(min32(h.AdvWnd, 0xFFFF))
			tcp.FIN = h.Flags.Has(FIN)
			tcp.SYN = h.Flags.Has(SYN)
			tcp.RST = h.Flags.Has(RST)
			tcp.ACK = h.Flags.Has(ACK)
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, fmt.Errorf("packet: failed to set tcp checksum network layer: %w", err)
		}
		transport = tcp
	case Datagram:
		udp := &layers.UDP{SrcPort: layers.UDPPort(p.Src.Port), DstPort: layers.UDPPort(p.Dst.Port)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, fmt.Errorf("packet: failed to set udp checksum network layer: %w", err)
		}
		transport = udp
	default:
		return nil, fmt.Errorf("packet: unknown protocol %d", p.Protocol)
	}

	payload := gopacket.Payload(p.Payload())
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, payload); err != nil {
		return nil, fmt.Errorf("packet: failed to serialize layers: %w", err)
	}

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return nil, fmt.Errorf("packet: failed to parse serialized packet: %w", errLayer.Error())
	}
	return pkt, nil
}

// FromEthernetLayers parses a real Ethernet/IPv4/TCP-or-UDP byte capture
// back into the simulator's abstract Packet representation, the reverse
// of ToEthernetLayers, for round-trip cross-checks against a wire capture.
func FromEthernetLayers(pkt gopacket.Packet) (*Packet, error) {
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, fmt.Errorf("packet: no IPv4 layer")
	}
	ip := ipLayer.(*layers.IPv4)

	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		var flags Flags
		if tcp.FIN {
			flags |= FIN
		}
		if tcp.SYN {
			flags |= SYN
		}
		if tcp.RST {
			flags |= RST
		}
		if tcp.ACK {
			flags |= ACK
		}
		hdr := &TCPHeader{Seq: tcp.Seq, Ack: tcp.Ack, AdvWnd: uint32(tcp.Window), Flags: flags}
		src := Endpoint{Addr: ipToAddr(ip.SrcIP), Port: uint16(tcp.SrcPort)}
		dst := Endpoint{Addr: ipToAddr(ip.DstIP), Port: uint16(tcp.DstPort)}
		return New(Stream, src, dst, hdr, append([]byte(nil), tcp.Payload...)), nil
	}

	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		src := Endpoint{Addr: ipToAddr(ip.SrcIP), Port: uint16(udp.SrcPort)}
		dst := Endpoint{Addr: ipToAddr(ip.DstIP), Port: uint16(udp.DstPort)}
		return New(Datagram, src, dst, nil, append([]byte(nil), udp.Payload...)), nil
	}

	return nil, fmt.Errorf("packet: no TCP or UDP layer")
}

func protocolNumber(p Protocol) layers.IPProtocol {
	if p == Stream {
		return layers.IPProtocolTCP
	}
	return layers.IPProtocolUDP
}

func addrToIP(a addr.Addr) net.IP {
	return net.IPv4(byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

func ipToAddr(ip net.IP) addr.Addr {
	v4 := ip.To4()
	return addr.Addr(uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]))
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

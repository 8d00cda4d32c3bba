package comm

import (
	"net"
	"strconv"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// maxDatagram is the largest UDP payload over IPv4.
const maxDatagram = 65507

// UDPLink implements Link over a UDP socket. Packets are sent to the
// destination address on RemotePort.
type UDPLink struct {
	Conn       *net.UDPConn
	RemotePort uint16
}

// ListenUDP binds to own:port. AddrAny binds to all interfaces.
func ListenUDP(own trdp.Addr, port uint16) (*UDPLink, error) {
	laddr := &net.UDPAddr{Port: int(port)}
	if own != trdp.AddrAny {
		b := own.Bytes()
		laddr.IP = net.IPv4(b[0], b[1], b[2], b[3])
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	return &UDPLink{Conn: conn, RemotePort: port}, nil
}

// LocalPort returns the bound port.
func (l *UDPLink) LocalPort() uint16 {
	if addr, ok := l.Conn.LocalAddr().(*net.UDPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// ReadPacket implements PacketReader.
func (l *UDPLink) ReadPacket() ([]byte, trdp.Addr, error) {
	buf := make([]byte, maxDatagram)
	n, from, err := l.Conn.ReadFromUDP(buf)
	if err != nil {
		return nil, trdp.AddrAny, err
	}
	var src trdp.Addr
	if ip4 := from.IP.To4(); ip4 != nil {
		src = trdp.AddrFromBytes(ip4)
	}
	return buf[:n], src, nil
}

// WritePacket implements PacketWriter.
func (l *UDPLink) WritePacket(pkt []byte, to trdp.Addr) error {
	b := to.Bytes()
	_, err := l.Conn.WriteToUDP(pkt, &net.UDPAddr{
		IP:   net.IPv4(b[0], b[1], b[2], b[3]),
		Port: int(l.RemotePort),
	})
	return err
}

// Close implements io.Closer.
func (l *UDPLink) Close() error {
	return l.Conn.Close()
}

// String implements fmt.Stringer.
func (l *UDPLink) String() string {
	return "udp:" + strconv.Itoa(int(l.LocalPort()))
}

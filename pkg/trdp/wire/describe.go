package wire

import "fmt"

// Describe decodes a packet into a one line summary for monitoring.
func Describe(b []byte) string {
	t, ok := PeekType(b)
	switch {
	case !ok:
		return fmt.Sprintf("short packet (%d bytes)", len(b))
	case t.IsPD():
		p, err := DecodePD(b)
		if err != nil {
			return fmt.Sprintf("bad PD packet: %v", err)
		}
		h := &p.Header
		return fmt.Sprintf("%s comId=%d seq=%d len=%d data=%.64q", h.Type, h.ComID, h.Seq, len(p.Data), p.Data)
	case t.IsMD():
		p, err := DecodeMD(b)
		if err != nil {
			return fmt.Sprintf("bad MD packet: %v", err)
		}
		h := &p.Header
		return fmt.Sprintf("%s comId=%d seq=%d session=%s status=%d src=%q len=%d data=%.64q",
			h.Type, h.ComID, h.Seq, h.SessionID, h.ReplyStatus, h.SourceURI, len(p.Data), p.Data)
	default:
		return fmt.Sprintf("unknown message type %04x", uint16(t))
	}
}

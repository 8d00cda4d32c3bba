package env

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/framework"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
	"github.com/robotalks/trdp.go/pkg/trdp/comm/mqtt"
	"github.com/robotalks/trdp.go/pkg/trdp/comm/stream"
	"github.com/robotalks/trdp.go/pkg/trdp/comm/websocket"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
	"github.com/robotalks/trdp.go/pkg/trdp/pd"
)

// Services a link carries.
const (
	ServiceMD = "md"
	ServicePD = "pd"
)

// Link URL schemes.
const (
	SchemeUDP       = "udp"
	SchemeTCP       = "tcp"
	SchemeTCPListen = "tcp-listen"
	SchemeMQTT      = "mqtt"
	SchemeWS        = "ws"
	SchemeWSListen  = "ws-listen"
)

// ServicePort returns the default UDP port of a service.
func ServicePort(service string) (uint16, error) {
	switch service {
	case ServiceMD:
		return trdp.MDPort, nil
	case ServicePD:
		return trdp.PDPort, nil
	default:
		return 0, fmt.Errorf("unknown service %q", service)
	}
}

// NewLink creates the link for service using LinkURL. Point-to-point
// links (tcp, ws) attribute every packet to the destination address.
func (c *Config) NewLink(service string) (comm.Link, error) {
	port, err := ServicePort(service)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(c.LinkURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}
	own, err := c.Own()
	if err != nil {
		return nil, err
	}
	peer := trdp.AddrAny
	if c.DestIP != "" {
		if peer, err = c.Dest(); err != nil {
			return nil, err
		}
	}
	glog.V(2).Infof("%s link %s", service, u.Redacted())
	switch u.Scheme {
	case "", SchemeUDP:
		if p := u.Port(); p != "" {
			n, err := strconv.ParseUint(p, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid UDP port %q", p)
			}
			port = uint16(n)
		}
		return comm.ListenUDP(own, port)
	case SchemeTCP:
		return stream.Dial(u.Host, peer)
	case SchemeTCPListen:
		return stream.Accept(u.Host)
	case SchemeMQTT:
		q, err := mqtt.NewQueueFromURL(c.LinkURL)
		if err != nil {
			return nil, err
		}
		if err := q.Connect(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", u.Host, err)
		}
		return &queueLink{Link: mqtt.NewLink(q, own, service), queue: q}, nil
	case SchemeWS:
		return websocket.Dial(c.LinkURL, "http://localhost/", peer)
	case SchemeWSListen:
		path := u.Path
		if path == "" {
			path = "/"
		}
		return websocket.Accept(u.Host, path)
	default:
		return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
	}
}

// queueLink owns the MQTT connection of a link.
type queueLink struct {
	*mqtt.Link
	queue *mqtt.Queue
}

func (l *queueLink) Close() error {
	var errs framework.AggregatedError
	return errs.Add(l.Link.Close(), l.queue.Close()).Aggregate()
}

// OpenMD creates the MD link and opens a session on it.
func (c *Config) OpenMD() (*md.Session, error) {
	own, err := c.Own()
	if err != nil {
		return nil, err
	}
	link, err := c.NewLink(ServiceMD)
	if err != nil {
		return nil, err
	}
	s, err := md.Open(link, md.Config{
		OwnAddr:             own,
		SourceURI:           c.SourceURI,
		DefaultReplyTimeout: c.MD.ReplyTimeout,
	})
	if err != nil {
		link.Close()
		return nil, err
	}
	return s, nil
}

// OpenPD creates the PD link and opens a session on it.
func (c *Config) OpenPD() (*pd.Session, error) {
	own, err := c.Own()
	if err != nil {
		return nil, err
	}
	link, err := c.NewLink(ServicePD)
	if err != nil {
		return nil, err
	}
	s, err := pd.Open(link, pd.Config{OwnAddr: own})
	if err != nil {
		link.Close()
		return nil, err
	}
	return s, nil
}

package usb

import (
	"context"
	"net"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/ghostkb/pkg/framework"
)

// DefaultQueueSize is the command backlog of a Server.
const DefaultQueueSize = 16

// Reply values sent back for each command.
const (
	ReplyAccepted int64 = iota
	ReplyRejected
	ReplyBusy
)

// Server exposes the host command stream as a websocket endpoint, the
// simulated counterpart of the USB interface. Every received command is
// answered with a KindStatus reply.
type Server struct {
	Addr string

	source ChanSource
}

// NewServer creates a Server.
func NewServer(addr string) *Server {
	return &Server{Addr: addr, source: NewChanSource(DefaultQueueSize)}
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "usb:" + s.Addr
}

// Receive implements CommandSource.
func (s *Server) Receive(ctx context.Context) (Command, error) {
	return s.source.Receive(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(s.serveConn).ServeHTTP(w, r)
}

// Run listens on Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s}
	glog.Infof("usb: listening on %s", ln.Addr())
	return framework.RunWithContextCancel(ctx, func() { srv.Close() }, func() error {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()
	glog.V(2).Infof("usb: host %s attached", conn.Request().RemoteAddr)
	for {
		var pkt []byte
		if err := websocket.Message.Receive(conn, &pkt); err != nil {
			glog.V(2).Infof("usb: host detached: %v", err)
			return
		}
		reply := Command{Kind: KindStatus, Value: ReplyAccepted}
		cmd, err := Decode(pkt)
		if err != nil {
			glog.Warningf("usb: %v", err)
			reply.Value, reply.Data = ReplyRejected, []byte(err.Error())
		} else {
			select {
			case s.source <- cmd:
				glog.V(2).Infof("usb: command %s", cmd)
			default:
				glog.Warningf("usb: backlog full, rejecting %s", cmd)
				reply.Value = ReplyBusy
			}
		}
		data, err := Encode(reply)
		if err == nil {
			err = websocket.Message.Send(conn, data)
		}
		if err != nil {
			glog.Warningf("usb: reply: %v", err)
			return
		}
	}
}

// Client is the host side of the websocket command stream.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a Server at url like ws://host:port/.
func Dial(url string) (*Client, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send sends a command and waits for the status reply.
func (c *Client) Send(cmd Command) (Command, error) {
	data, err := Encode(cmd)
	if err != nil {
		return Command{}, err
	}
	if err = websocket.Message.Send(c.conn, data); err != nil {
		return Command{}, err
	}
	var pkt []byte
	if err = websocket.Message.Receive(c.conn, &pkt); err != nil {
		return Command{}, err
	}
	return Decode(pkt)
}

// Close implements io.Closer.
func (c *Client) Close() error {
	return c.conn.Close()
}

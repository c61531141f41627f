package mqtt

import (
	"io"
	"sync"
	"time"

	"github.com/robotalks/ghostkb/pkg/side"
)

// LinkTopicPrefix is the topic level under which both halves publish.
const LinkTopicPrefix = "link/"

// PublishTimeout bounds a single write.
const PublishTimeout = time.Second

// LinkTopic returns the topic a side publishes its bytes to.
func LinkTopic(s side.Side) string {
	return LinkTopicPrefix + s.String()
}

// Link is a byte stream between the halves: writes are published to the
// topic of the local side, reads come from the topic of the peer.
type Link struct {
	Queue    *Queue
	PubTopic string
	SubTopic string

	dataCh    chan []byte
	pending   []byte
	done      chan struct{}
	closeOnce sync.Once
	sub       *Subscription
	ownsQueue bool
}

// NewLink creates a Link for the local side on an existing Queue and
// subscribes the peer topic.
func NewLink(q *Queue, local side.Side) *Link {
	l := &Link{
		Queue:    q,
		PubTopic: LinkTopic(local),
		SubTopic: LinkTopic(local.Peer()),
		dataCh:   make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	l.sub = q.Sub(l.SubTopic, l.handleMsg)
	return l
}

// DialLink connects to the broker and creates a Link for the local side.
func DialLink(brokerURL string, local side.Side) (*Link, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("ghostkb:" + local.String())
	}
	q := NewQueue(opts, topicPrefix)
	l := NewLink(q, local)
	l.ownsQueue = true
	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return l, nil
}

// Read implements io.Reader.
func (l *Link) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case data := <-l.dataCh:
			l.pending = data
		case <-l.done:
			return 0, io.EOF
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write implements io.Writer.
func (l *Link) Write(p []byte) (int, error) {
	select {
	case <-l.done:
		return 0, io.ErrClosedPipe
	default:
	}
	data := make([]byte, len(p))
	copy(data, p)
	token := l.Queue.Pub(l.PubTopic, data)
	if !token.WaitTimeout(PublishTimeout) {
		return 0, ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (l *Link) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.sub.Close()
		if l.ownsQueue {
			l.Queue.Close()
		}
	})
	return
}

func (l *Link) handleMsg(_ string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	select {
	case l.dataCh <- payload:
	case <-l.done:
	}
}

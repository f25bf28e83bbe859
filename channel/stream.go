package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// frame is the wire envelope gob-encoded onto every length-prefixed
// message, carrying the same Value/Err split as Msg so a remote decode
// failure or handler error can be relayed without tearing down the
// connection outright.
type frame struct {
	Value interface{}
	Err   string
}

// streamChannel adapts any io.ReadWriteCloser (a net.Conn in production, a
// net.Pipe in tests) into a Channel, framing each message with a 4-byte
// big-endian length prefix ahead of a gob-encoded frame. Grounded on
// net.TcpConnection (a plain net.Conn wrapper) combined with the
// length-prefixed-gob wire idiom used elsewhere for serialized payloads.
type streamChannel struct {
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	sub    *subscriber
	codecs *codecRegistry

	writeMu sync.Mutex
	closeMu *sync.Once
	closed  chan struct{}
	primary bool
}

// codecRegistry lets a Fork share the same demultiplexing pump as its
// parent: only one goroutine ever reads rwc, broadcasting each decoded
// frame out through a hub exactly like the in-memory implementation.
type codecRegistry struct {
	hub *hub
}

// NewStream wraps rwc as a Channel. A single background goroutine pumps
// frames off the wire and publishes them to an internal hub, so Fork() on a
// stream-backed Channel works the same way it does for an in-memory pair.
func NewStream(rwc io.ReadWriteCloser) Channel {
	h := newHub()
	c := &streamChannel{
		rwc:     rwc,
		r:       bufio.NewReader(rwc),
		sub:     h.subscribe(),
		codecs:  &codecRegistry{hub: h},
		closeMu: &sync.Once{},
		closed:  make(chan struct{}),
		primary: true,
	}

	go c.pump()
	return c
}

func (c *streamChannel) pump() {
	defer c.codecs.hub.close()

	for {
		var length uint32
		if err := binary.Read(c.r, binary.BigEndian, &length); err != nil {
			c.publishReadErr(err)
			return
		}

		buf := make([]byte, length)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			c.publishReadErr(err)
			return
		}

		var fr frame
		dec := gob.NewDecoder(bytes.NewReader(buf))
		if err := dec.Decode(&fr); err != nil {
			c.codecs.hub.publish(Msg{Err: errors.Wrap(err, "decoding frame")})
			continue
		}

		if fr.Err != "" {
			c.codecs.hub.publish(Msg{Err: errors.New(fr.Err)})
			continue
		}

		c.codecs.hub.publish(Msg{Value: fr.Value})
	}
}

// publishReadErr surfaces a broken stream as a final message on the hub
// rather than silently draining, unless the channel was closed locally
// first (in which case io.EOF/use-of-closed-connection is expected) or the
// peer closed the stream cleanly between frames (a bare io.EOF), both of
// which simply drain the channel.
func (c *streamChannel) publishReadErr(err error) {
	select {
	case <-c.closed:
		return
	default:
	}
	if err == io.EOF {
		return
	}
	c.codecs.hub.publish(Msg{Err: errors.Wrap(err, "reading from stream")})
}

func (c *streamChannel) Enqueue(msg Msg) error {
	fr := frame{Value: msg.Value}
	if msg.Err != nil {
		fr.Err = msg.Err.Error()
	}

	body, err := encodeGob(fr)
	if err != nil {
		return errors.Wrap(err, "encoding frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return errors.WithStack(ErrChannelClosed)
	default:
	}

	if err := binary.Write(c.rwc, binary.BigEndian, uint32(len(body))); err != nil {
		return errors.Wrap(err, "writing frame length")
	}
	if _, err := c.rwc.Write(body); err != nil {
		return errors.Wrap(err, "writing frame body")
	}
	return nil
}

func (c *streamChannel) Read(ctx context.Context) (*Msg, error) {
	return c.sub.read(ctx)
}

// Close tears down the whole connection when called on the Channel
// returned by NewStream. Called on a Fork()ed Channel, it only detaches
// that fork's own reader, leaving the connection and any other fork
// untouched.
func (c *streamChannel) Close() error {
	if !c.primary {
		c.codecs.hub.unsubscribe(c.sub)
		return nil
	}

	c.closeMu.Do(func() {
		close(c.closed)
		c.rwc.Close()
	})
	return nil
}

func (c *streamChannel) Drained() bool {
	return c.sub.drained()
}

func (c *streamChannel) Fork() Channel {
	return &streamChannel{
		rwc:     c.rwc,
		sub:     c.codecs.hub.subscribe(),
		codecs:  c.codecs,
		closeMu: c.closeMu,
		closed:  c.closed,
	}
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

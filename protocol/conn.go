package protocol

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// ConnConfig tunes the control channel tasks.
type ConnConfig struct {
	SendQueueSize  int
	RecvQueueSize  int
	FlushInterval  time.Duration
	ReadBufferSize int
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SendQueueSize:  256,
		RecvQueueSize:  256,
		FlushInterval:  20 * time.Millisecond,
		ReadBufferSize: 16 * 1024,
	}
}

// ErrQueueFull is reported when the outgoing queue cannot take a message.
var ErrQueueFull = errors.New("send queue full")

type outgoing struct {
	msg   Message
	flush bool
}

// Conn is one control channel. A reader goroutine decodes frames into
// Incoming; a writer goroutine drains the send queue into a buffered
// writer that is flushed on an explicit Flush marker or on FlushInterval.
type Conn struct {
	ID string

	rwc    io.ReadWriteCloser
	cfg    ConnConfig
	decode Decoder

	in   chan Message
	out  chan outgoing
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	wg        sync.WaitGroup
}

// NewConn wraps an established, handshaken stream. Call Start to run it.
func NewConn(rwc io.ReadWriteCloser, cfg ConnConfig, decode Decoder) *Conn {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = 256
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 20 * time.Millisecond
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 16 * 1024
	}
	return &Conn{
		ID:     ksuid.New().String(),
		rwc:    rwc,
		cfg:    cfg,
		decode: decode,
		in:     make(chan Message, cfg.RecvQueueSize),
		out:    make(chan outgoing, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) Start() {
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// Incoming is closed when the reader stops.
func (c *Conn) Incoming() <-chan Message {
	return c.in
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that closed the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues m without blocking. It returns false when the connection is
// closed or the queue is full.
func (c *Conn) Send(m Message) bool {
	return c.enqueue(outgoing{msg: m})
}

// Flush queues a flush marker behind every message sent so far.
func (c *Conn) Flush() bool {
	return c.enqueue(outgoing{flush: true})
}

// SendAndFlush queues m followed by a flush marker.
func (c *Conn) SendAndFlush(m Message) bool {
	return c.Send(m) && c.Flush()
}

func (c *Conn) enqueue(o outgoing) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- o:
		return true
	default:
		return false
	}
}

// Close closes the stream; both tasks exit.
func (c *Conn) Close() error {
	return c.closeWith(nil)
}

func (c *Conn) closeWith(err error) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		closeErr = c.rwc.Close()
	})
	return closeErr
}

// Wait blocks until both tasks have exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.in)
	r := bufio.NewReaderSize(c.rwc, c.cfg.ReadBufferSize)
	for {
		t, payload, err := ReadFrame(r)
		if err != nil {
			c.closeWith(err)
			return
		}
		msg, err := c.decode(t, payload)
		if err != nil {
			c.closeWith(err)
			return
		}
		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	w := bufio.NewWriter(c.rwc)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case o := <-c.out:
			if o.flush {
				if err := w.Flush(); err != nil {
					c.closeWith(err)
					return
				}
				continue
			}
			payload, err := Marshal(o.msg)
			if err == nil {
				err = WriteFrame(w, o.msg.Type(), payload)
			}
			if err != nil {
				c.closeWith(err)
				return
			}
		case <-ticker.C:
			if w.Buffered() == 0 {
				continue
			}
			if err := w.Flush(); err != nil {
				c.closeWith(err)
				return
			}
		}
	}
}

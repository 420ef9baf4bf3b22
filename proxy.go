package apex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/gobplexer"
)

func init() {
	gob.Register(&packet{})
}

const (
	keepaliveInterval = time.Minute
	keepaliveMaxDelay = time.Minute * 2

	// paramRefreshInterval is how often a LearnerProxy
	// refreshes its parameter-store mirror.
	paramRefreshInterval = time.Second / 2
)

type packetType int

const (
	packetPush packetType = iota
	packetParams
)

type packet struct {
	Type packetType

	// Used for push requests.
	Batch *PrioritizedBatch

	// Used for params requests.
	Known ParamVersion

	// Used for params responses.
	Snapshot []byte
	Version  ParamVersion

	// Used for all responses.
	Err *string
}

func newPacketErr(err error) *packet {
	if err == nil {
		return &packet{}
	}
	s := err.Error()
	return &packet{Err: &s}
}

// ProxyProvide serves a learner's replay queue and
// parameter store to the other end of c, which should be
// using ProxyConsume.
//
// Pushed batches enter queue through Send, so a full
// queue exerts backpressure over the wire.
//
// This blocks until the proxy connection ends or done is
// closed. It automatically closes c.
func ProxyProvide(c io.ReadWriteCloser, queue *ReplayQueue, store *ParamStore,
	done <-chan struct{}) (err error) {
	defer essentials.AddCtxTo("provide proxy", &err)

	rootConn := gobplexer.NetConnection(c)
	defer rootConn.Close()

	connector := gobplexer.MultiplexConnector(rootConn)
	defer connector.Close()

	conn, err := gobplexer.KeepaliveConnector(connector, keepaliveInterval,
		keepaliveMaxDelay)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		p, err := receivePacket(conn)
		if err != nil {
			return err
		}
		switch p.Type {
		case packetPush:
			pushErr := queue.Send(p.Batch, done)
			if err := conn.Send(newPacketErr(pushErr)); err != nil {
				return err
			}
			if pushErr != nil {
				return nil
			}
		case packetParams:
			resP := &packet{}
			snapshot, version := store.Read()
			resP.Version = version
			if version > p.Known {
				resP.Snapshot = snapshot
			}
			if err := conn.Send(resP); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown packet type: %v", p.Type)
		}
	}
}

// A LearnerProxy is a connection to a remote learner.
//
// It owns a local replay queue and a local mirror of the
// learner's parameter store, and keeps both wired to the
// remote end: batches sent to the local queue are
// forwarded over the connection, and the mirror refreshes
// periodically. Unmodified actors can therefore run
// against a learner in another process, at the cost of
// slightly staler parameters.
//
// A LearnerProxy should be closed to clean up resources
// associated with it.
type LearnerProxy struct {
	closers []io.Closer
	conn    gobplexer.Connection

	queue *ReplayQueue
	store *ParamStore
	known ParamVersion

	stop      chan struct{}
	closeOnce sync.Once
	doneChan  chan struct{}

	errLock sync.Mutex
	err     error
}

// ProxyConsume connects to a learner which is running
// ProxyProvide on the other end of c.
//
// The proxy's local replay queue holds up to
// queueCapacity in-flight batches.
func ProxyConsume(c io.ReadWriteCloser, queueCapacity int) (proxy *LearnerProxy,
	err error) {
	defer essentials.AddCtxTo("consume proxy", &err)

	res := &LearnerProxy{
		queue:    NewReplayQueue(queueCapacity),
		store:    NewParamStore(),
		stop:     make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	rootConn := gobplexer.NetConnection(c)
	res.closers = append(res.closers, rootConn)

	listener := gobplexer.MultiplexListener(rootConn)
	res.closers = append(res.closers, listener)

	conn, err := gobplexer.KeepaliveListener(listener, keepaliveInterval,
		keepaliveMaxDelay)
	if err != nil {
		res.closeConns()
		return nil, err
	}
	res.closers = append(res.closers, conn)
	res.conn = conn

	if err := res.fetchParams(); err != nil {
		res.closeConns()
		return nil, err
	}

	go res.forward()

	return res, nil
}

// Queue returns the local queue whose batches are
// forwarded to the remote learner.
func (l *LearnerProxy) Queue() *ReplayQueue {
	return l.queue
}

// Params returns the local mirror of the remote learner's
// parameter store.
func (l *LearnerProxy) Params() *ParamStore {
	return l.store
}

// Done returns a channel which is closed once the proxy
// stops forwarding, either after Close or an error.
func (l *LearnerProxy) Done() <-chan struct{} {
	return l.doneChan
}

// Err returns the error that stopped the proxy's
// forwarding loop, or nil if it was stopped by Close.
func (l *LearnerProxy) Err() error {
	l.errLock.Lock()
	defer l.errLock.Unlock()
	return l.err
}

// Close shuts down the proxy and its connection.
func (l *LearnerProxy) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	l.closeConns()
	return nil
}

func (l *LearnerProxy) closeConns() {
	for _, c := range l.closers {
		c.Close()
	}
}

func (l *LearnerProxy) forward() {
	defer close(l.doneChan)
	ticker := time.NewTicker(paramRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case msg := <-l.queue.ch:
			if err := l.push(msg); err != nil {
				l.setErr(err)
				return
			}
		case <-ticker.C:
			if err := l.fetchParams(); err != nil {
				l.setErr(err)
				return
			}
		}
	}
}

func (l *LearnerProxy) push(b *PrioritizedBatch) (err error) {
	defer essentials.AddCtxTo("push batch", &err)
	if err := l.conn.Send(&packet{Type: packetPush, Batch: b}); err != nil {
		return err
	}
	p, err := receivePacket(l.conn)
	if err != nil {
		return err
	}
	if p.Err != nil {
		return errors.New(*p.Err)
	}
	return nil
}

func (l *LearnerProxy) fetchParams() (err error) {
	defer essentials.AddCtxTo("fetch parameters", &err)
	if err := l.conn.Send(&packet{Type: packetParams, Known: l.known}); err != nil {
		return err
	}
	p, err := receivePacket(l.conn)
	if err != nil {
		return err
	}
	if p.Err != nil {
		return errors.New(*p.Err)
	}
	if p.Snapshot != nil {
		l.store.Publish(p.Snapshot)
	}
	l.known = p.Version
	return nil
}

func (l *LearnerProxy) setErr(err error) {
	l.errLock.Lock()
	defer l.errLock.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func receivePacket(c gobplexer.Connection) (*packet, error) {
	packetObj, err := c.Receive()
	if err != nil {
		return nil, err
	}
	packet, ok := packetObj.(*packet)
	if !ok {
		return nil, fmt.Errorf("bad packet type: %T", packetObj)
	}
	return packet, nil
}

// ProxyListen listens for incoming connections on l and
// serves queue and store to each one with ProxyProvide.
//
// If logger is non-nil, it is passed messages whenever a
// connection starts or ends with an error.
//
// This blocks until l.Accept returns with an error, at
// which point the error is returned.
func ProxyListen(l net.Listener, queue *ReplayQueue, store *ParamStore,
	done <-chan struct{}, logger func(msg ...interface{})) (err error) {
	defer essentials.AddCtxTo("ProxyListen", &err)
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go func(conn net.Conn) {
			sendLog := func(str string) {
				if logger != nil {
					logger(conn.RemoteAddr().String() + ": " + str)
				}
			}
			sendLog("new connection")
			if err := ProxyProvide(conn, queue, store, done); err != nil {
				sendLog(err.Error())
				return
			}
			sendLog("connection finished")
		}(conn)
	}
}

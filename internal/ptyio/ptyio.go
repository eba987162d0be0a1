// Package ptyio provides a pseudo-terminal whose master side is pumped by
// background goroutines through ring buffers. Applications open the slave
// path (TTYName, or the optional symlink) like a serial port; the process
// reads what they type with Read and answers with Write.
//
// Write never blocks: bytes that do not fit into the write ring are dropped
// and counted in Stats. Read blocks until the slave produced data or the PTY
// was closed, in which case it returns io.EOF.
//
// The poll timeout bounds how long the pumps take to notice Close.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/fanlink/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const (
	DefaultReadCap     = 4096
	DefaultWriteCap    = 4096
	DefaultPollTimeout = 50 * time.Millisecond

	closeTimeout = 5 * time.Second
)

// ErrorCallback is invoked, from a pump goroutine, when a pump stops on an
// unexpected error. The PTY is unusable afterwards and should be closed.
type ErrorCallback func(err error)

// Options configures a PTY. Zero values use the defaults above.
type Options struct {
	ReadCap     int
	WriteCap    int
	PollTimeout time.Duration
	// Symlink, when set, is created pointing at the slave and removed on Close.
	Symlink string
	Logger  *logrus.Logger
	OnError ErrorCallback
}

// PTY is the master side of a pseudo-terminal pair
type PTY interface {
	io.ReadWriteCloser
	TTYName() string
	Symlink() string
	Stats() Stats
}

// Stats are runtime counters of the pumps
type Stats struct {
	ReadQueueLen  int
	WriteQueueLen int

	DroppedRead  uint64
	DroppedWrite uint64
	BytesRead    uint64
	BytesWritten uint64
}

type ringPTY struct {
	logger      *logrus.Logger
	master      *os.File
	slave       *os.File
	fd          int32 // master descriptor; os.File.Fd would switch it back to blocking mode
	ttyName     string
	symlink     string
	pollTimeout int
	onError     ErrorCallback
	errOnce     sync.Once

	readBuf    *ringbuffer.RingBuffer
	writeBuf   *ringbuffer.RingBuffer
	readNotify chan struct{}
	readMu     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedRead  atomic.Uint64
	droppedWrite atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// Open creates a PTY pair, puts the slave into raw mode and starts the pumps
func Open(opts *Options) (PTY, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	readCap, writeCap, poll := opts.ReadCap, opts.WriteCap, opts.PollTimeout
	if readCap <= 0 {
		readCap = DefaultReadCap
	}
	if writeCap <= 0 {
		writeCap = DefaultWriteCap
	}
	if poll <= 0 {
		poll = DefaultPollTimeout
	}

	master, slave, fd, err := openPair()
	if err != nil {
		return nil, err
	}

	p := &ringPTY{
		logger:      logger,
		master:      master,
		slave:       slave,
		fd:          int32(fd),
		ttyName:     slave.Name(),
		pollTimeout: int(poll / time.Millisecond),
		onError:     opts.OnError,
		readBuf:     ringbuffer.New(readCap),
		writeBuf:    ringbuffer.New(writeCap),
		readNotify:  make(chan struct{}, 1),
	}

	if opts.Symlink != "" {
		if err := os.Symlink(p.ttyName, opts.Symlink); err != nil {
			_ = master.Close()
			_ = slave.Close()
			return nil, fmt.Errorf("failed to create tty symlink %s -> %s: %w", opts.Symlink, p.ttyName, err)
		}
		p.symlink = opts.Symlink
		logger.WithFields(logrus.Fields{"symlink": p.symlink, "tty": p.ttyName}).Info("Created PTY symlink")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(2)
	groutine.Go(p.ctx, "pty-read-loop", func(ctx context.Context) {
		defer p.wg.Done()
		p.readLoop(ctx)
	})
	groutine.Go(p.ctx, "pty-write-loop", func(ctx context.Context) {
		defer p.wg.Done()
		p.writeLoop(ctx)
	})

	logger.WithField("tty", p.ttyName).Info("Created PTY device")
	return p, nil
}

func openPair() (*os.File, *os.File, int, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, -1, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}
	fail := func(what string, err error) (*os.File, *os.File, int, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, -1, fmt.Errorf("failed to set PTY %s to %s: %w", name, what, err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	fd := int(master.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		return fail("nonblocking mode", err)
	}
	return master, slave, fd, nil
}

func (p *ringPTY) fail(loop string, err error) {
	p.logger.WithError(err).Warnf("PTY %s stopped", loop)
	if p.onError != nil {
		p.errOnce.Do(func() {
			p.onError(fmt.Errorf("pty %s: %w", loop, err))
		})
	}
}

// readLoop moves bytes typed on the slave into readBuf
func (p *ringPTY) readLoop(ctx context.Context) {
	fds := []unix.PollFd{{Fd: p.fd, Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		ready, err := unix.Poll(fds, p.pollTimeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Debug("PTY read poll failed")
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := p.master.Read(buf)
		if n > 0 {
			written, werr := p.readBuf.Write(buf[:n])
			if werr != nil && written == 0 && !errors.Is(werr, ringbuffer.ErrIsFull) {
				p.logger.WithError(werr).Warn("PTY read buffer write failed")
			}
			if written < n {
				p.droppedRead.Add(uint64(n - written))
				p.logger.WithField("dropped", n-written).Warn("PTY read buffer overflow")
			}
			p.bytesRead.Add(uint64(written))
			select {
			case p.readNotify <- struct{}{}:
			default:
			}
		}

		switch {
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed), errors.Is(err, io.EOF):
			p.logger.WithError(err).Debug("PTY read loop exiting")
			return
		case errors.Is(err, syscall.EIO):
			// No process holds the slave open right now; keep waiting for one.
			time.Sleep(time.Duration(p.pollTimeout) * time.Millisecond)
		default:
			p.fail("read loop", err)
			return
		}
	}
}

// writeLoop drains writeBuf into the master
func (p *ringPTY) writeLoop(ctx context.Context) {
	fds := []unix.PollFd{{Fd: p.fd, Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		if p.writeBuf.IsEmpty() {
			time.Sleep(time.Duration(p.pollTimeout) * time.Millisecond / 5)
			continue
		}

		n, err := p.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			p.logger.WithError(err).Warn("PTY write buffer read failed")
			continue
		}

		for off := 0; off < n && ctx.Err() == nil; {
			written, err := p.master.Write(buf[off:n])
			if written > 0 {
				off += written
				p.bytesWritten.Add(uint64(written))
			}
			switch {
			case err == nil, errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if _, perr := unix.Poll(fds, p.pollTimeout); perr != nil && !errors.Is(perr, syscall.EINTR) {
					p.logger.WithError(perr).Debug("PTY write poll failed")
				}
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				p.logger.Debug("PTY write loop exiting: master closed")
				return
			default:
				p.fail("write loop", err)
				return
			}
		}
	}
}

// Read blocks until the slave produced data or the PTY is closed
func (p *ringPTY) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()

	for {
		if p.closed.Load() {
			return 0, io.EOF
		}
		n, err := p.readBuf.TryRead(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return 0, err
		}
		select {
		case <-p.readNotify:
		case <-p.ctx.Done():
			return 0, io.EOF
		}
	}
}

// Write queues data for the slave; it never blocks. A short count means the
// write ring was full and the remainder was dropped.
func (p *ringPTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	// A partial write reports an error too; the short count is what matters.
	written, err := p.writeBuf.Write(data)
	if err != nil && written == 0 && !errors.Is(err, ringbuffer.ErrIsFull) {
		return 0, err
	}
	if written < len(data) {
		p.droppedWrite.Add(uint64(len(data) - written))
		p.logger.WithFields(logrus.Fields{
			"dropped": len(data) - written,
			"queued":  written,
		}).Warn("PTY write buffer overflow")
	}
	return written, nil
}

// Close stops the pumps, closes both ends and removes the symlink
func (p *ringPTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	if p.symlink != "" {
		if err := os.Remove(p.symlink); err != nil {
			p.logger.WithError(err).WithField("symlink", p.symlink).Warn("Failed to remove tty symlink")
		}
	}

	var errs []error
	if err := p.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY master: %w", err))
	}
	if err := p.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY slave: %w", err))
	}

	done := make(chan struct{})
	groutine.Go(context.Background(), "pty-close-wait", func(context.Context) {
		p.wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(closeTimeout):
		p.logger.WithField("tty", p.ttyName).Error("PTY pumps did not exit in time")
	}
	return errors.Join(errs...)
}

func (p *ringPTY) TTYName() string {
	return p.ttyName
}

func (p *ringPTY) Symlink() string {
	return p.symlink
}

// Stats returns instantaneous counters
func (p *ringPTY) Stats() Stats {
	return Stats{
		ReadQueueLen:  p.readBuf.Length(),
		WriteQueueLen: p.writeBuf.Length(),
		DroppedRead:   p.droppedRead.Load(),
		DroppedWrite:  p.droppedWrite.Load(),
		BytesRead:     p.bytesRead.Load(),
		BytesWritten:  p.bytesWritten.Load(),
	}
}

// Package radio is the bidirectional packet boundary to the mesh modem. The
// modem bridge speaks a newline-framed, tab-separated protocol over the
// serial link: inbound "TEXT\t<origin>\t<payload>" and
// "POS\t<origin>\t<lat>\t<lon>" (TEXT may piggyback a fix as
// "TEXT\t<origin>\t<lat>\t<lon>\t<payload>"), outbound "DM\t<origin>\t<payload>"
// and "BCAST\t<payload>". Payloads are escaped so frames stay one line.
package radio

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"lora-osmnotes/gateway/internal/logging"
)

// PacketKind distinguishes the decoded packet variants.
type PacketKind int

const (
	PacketText PacketKind = iota
	PacketPosition
)

// Packet is one decoded inbound frame.
type Packet struct {
	Kind        PacketKind
	Origin      string
	Text        string
	Lat         float64
	Lon         float64
	HasPosition bool
	ReceivedAt  time.Time
}

// Handler receives decoded packets from the reader goroutine.
type Handler func(Packet)

const (
	// MaxFrameChars is the safe payload size for one mesh frame.
	MaxFrameChars = 200

	defaultBaudRate   = 115200
	initialBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	interFrameSpacing = 2 * time.Second
	writeTimeout      = 2 * time.Second
)

// Adapter owns the serial endpoint, its reader goroutine and the reconnect
// supervisor. Transmits while disconnected return false and are dropped by
// callers; acks are best-effort.
type Adapter struct {
	portName string
	open     func(name string) (io.ReadWriteCloser, error)

	handler Handler

	mu        sync.Mutex // guards port and serializes writes
	port      io.ReadWriteCloser
	connected atomic.Bool

	reconnects atomic.Uint64

	now   func() time.Time
	sleep func(time.Duration)

	log *zap.SugaredLogger
}

func New(portName string) *Adapter {
	return &Adapter{
		portName: portName,
		open: func(name string) (io.ReadWriteCloser, error) {
			return serial.Open(name, &serial.Mode{BaudRate: defaultBaudRate})
		},
		now:   time.Now,
		sleep: time.Sleep,
		log:   logging.WithComponent("radio"),
	}
}

// OnPacket registers the inbound handler. Must be called before Run.
func (a *Adapter) OnPacket(h Handler) {
	a.handler = h
}

// IsConnected reports whether the serial link is currently up.
func (a *Adapter) IsConnected() bool {
	return a.connected.Load()
}

// Reconnects counts supervisor-driven reopen attempts, for metrics.
func (a *Adapter) Reconnects() uint64 {
	return a.reconnects.Load()
}

// Run is the supervisor loop: it opens the endpoint, pumps the reader until
// an I/O error, then re-opens with exponential backoff bounded at 30 s.
// Blocks until ctx is canceled.
func (a *Adapter) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		port, err := a.open(a.portName)
		if err != nil {
			a.log.Warnw("serial open failed", "port", a.portName, "error", err.Error(), "retry_in", backoff.String())
			a.reconnects.Add(1)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		a.setPort(port)
		a.connected.Store(true)
		backoff = initialBackoff
		a.log.Infow("serial connected", "port", a.portName)

		a.readLoop(ctx, port)

		a.connected.Store(false)
		a.clearPort(port)
		a.log.Warnw("serial disconnected", "port", a.portName)

		if ctx.Err() != nil {
			return nil
		}
		a.reconnects.Add(1)
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// readLoop pumps frames until a read error or ctx cancellation. Serial reads
// block, so cancellation is delivered by closing the port out from under the
// reader.
func (a *Adapter) readLoop(ctx context.Context, port io.ReadWriteCloser) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			port.Close()
		case <-done:
		}
	}()
	defer close(done)

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		pkt, ok := a.parseFrame(line)
		if !ok {
			continue
		}
		if a.handler != nil {
			a.handler(pkt)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		a.log.Warnw("serial read error", "error", err.Error())
	}
}

func (a *Adapter) parseFrame(line string) (Packet, bool) {
	fields := strings.Split(line, "\t")
	switch fields[0] {
	case "TEXT":
		switch len(fields) {
		case 3:
			return Packet{
				Kind:       PacketText,
				Origin:     fields[1],
				Text:       unescapePayload(fields[2]),
				ReceivedAt: a.now(),
			}, true
		case 5:
			lat, errLat := strconv.ParseFloat(fields[2], 64)
			lon, errLon := strconv.ParseFloat(fields[3], 64)
			if errLat != nil || errLon != nil {
				a.log.Debugw("malformed TEXT frame coordinates", "line", line)
				return Packet{}, false
			}
			return Packet{
				Kind:        PacketText,
				Origin:      fields[1],
				Text:        unescapePayload(fields[4]),
				Lat:         lat,
				Lon:         lon,
				HasPosition: true,
				ReceivedAt:  a.now(),
			}, true
		}
	case "POS":
		if len(fields) == 4 {
			lat, errLat := strconv.ParseFloat(fields[2], 64)
			lon, errLon := strconv.ParseFloat(fields[3], 64)
			if errLat != nil || errLon != nil {
				a.log.Debugw("malformed POS frame", "line", line)
				return Packet{}, false
			}
			return Packet{
				Kind:        PacketPosition,
				Origin:      fields[1],
				Lat:         lat,
				Lon:         lon,
				HasPosition: true,
				ReceivedAt:  a.now(),
			}, true
		}
	}
	a.log.Debugw("unrecognized frame", "line", line)
	return Packet{}, false
}

// SendDirect transmits a direct message. Payloads over the frame size are
// split and spaced ≥2 s apart to reduce mesh collision loss. Returns false
// while disconnected or on any write failure.
func (a *Adapter) SendDirect(origin, text string) bool {
	if !a.connected.Load() {
		return false
	}
	for i, chunk := range SplitMessage(text, MaxFrameChars) {
		if i > 0 {
			a.sleep(interFrameSpacing)
		}
		if !a.writeFrame("DM\t" + origin + "\t" + escapePayload(chunk)) {
			return false
		}
	}
	return true
}

// SendBroadcast transmits a channel-wide message.
func (a *Adapter) SendBroadcast(text string) bool {
	if !a.connected.Load() {
		return false
	}
	for i, chunk := range SplitMessage(text, MaxFrameChars) {
		if i > 0 {
			a.sleep(interFrameSpacing)
		}
		if !a.writeFrame("BCAST\t" + escapePayload(chunk)) {
			return false
		}
	}
	return true
}

// writeFrame writes one frame under the 2 s budget. A timed-out or failed
// write closes the port so the supervisor reconnects.
func (a *Adapter) writeFrame(frame string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	port := a.port
	if port == nil {
		return false
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := port.Write([]byte(frame + "\n"))
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.log.Warnw("serial write failed", "error", err.Error())
			a.connected.Store(false)
			port.Close()
			return false
		}
		return true
	case <-time.After(writeTimeout):
		a.log.Warnw("serial write timed out")
		a.connected.Store(false)
		port.Close()
		return false
	}
}

func (a *Adapter) setPort(port io.ReadWriteCloser) {
	a.mu.Lock()
	a.port = port
	a.mu.Unlock()
}

func (a *Adapter) clearPort(port io.ReadWriteCloser) {
	a.mu.Lock()
	if a.port == port {
		a.port = nil
	}
	a.mu.Unlock()
	port.Close()
}

// SplitMessage cuts text into rune-safe chunks of at most max characters,
// preferring to break at the last whitespace inside the window.
func SplitMessage(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, string(runes))
			break
		}
		cut := max
		for i := max; i > max/2; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
	}
	return chunks
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepCtx waits for d unless ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var (
	payloadEscaper   = strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\t", "\\t")
	payloadUnescaper = strings.NewReplacer("\\n", "\n", "\\t", "\t", "\\\\", "\\")
)

func escapePayload(s string) string {
	return payloadEscaper.Replace(s)
}

func unescapePayload(s string) string {
	return payloadUnescaper.Replace(s)
}

package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// measureCommand asks the bridge for one conversion. The bridge replies
// with "T=<celsius>C,H=<percent>%" or "E" on a checksum/timing failure.
const measureCommand = "M\n"

// pollTimeout bounds a single port read so the overall deadline is honored.
const pollTimeout = 100 * time.Millisecond

// lateReplyWindow is how long, in read timeouts, the source waits for a
// reply owed to a timed-out command before sending the next one.
const lateReplyWindow = 2

// errNoReply marks a command the bridge did not answer in time.
var errNoReply = errors.New("sensor: no reply")

// flusher discards input queued in the port. *serial.Port implements it.
type flusher interface {
	Flush() error
}

var _ flusher = (*serial.Port)(nil)

// serialSource talks to a DHT22 UART bridge.
type serialSource struct {
	port    io.ReadWriteCloser
	timeout time.Duration

	rest []byte // bytes read past the last returned line
	owed bool   // the last command timed out and may still be answered
}

func openSerial(name string, baud int, timeout time.Duration) (*serialSource, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: pollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sensor: open serial %q: %w", name, err)
	}
	return newSerialSource(port, timeout), nil
}

func newSerialSource(port io.ReadWriteCloser, timeout time.Duration) *serialSource {
	return &serialSource{port: port, timeout: timeout}
}

func (s *serialSource) measure() (frame, error) {
	if err := s.resync(); err != nil {
		return frame{}, err
	}
	if _, err := io.WriteString(s.port, measureCommand); err != nil {
		return frame{}, fmt.Errorf("sensor: write command: %w", err)
	}
	line, err := s.readLine(s.timeout)
	if err != nil {
		s.owed = errors.Is(err, errNoReply)
		return frame{}, err
	}
	return parseFrame(line)
}

// resync discards everything received before the next command, so the
// reply read after it always answers that command. A reply still owed to a
// timed-out command is waited for and dropped first.
func (s *serialSource) resync() error {
	if s.owed {
		s.owed = false
		if line, err := s.readLine(lateReplyWindow * s.timeout); err == nil {
			slog.Debug("[DHT] dropped late bridge reply", "line", line)
		}
	}
	s.rest = s.rest[:0]
	if f, ok := s.port.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("sensor: flush input: %w", err)
		}
	}
	return nil
}

// readLine returns the next line, without its '\n', reading until one is
// complete or timeout passes. Bytes after the newline are kept for the
// next call. A read that returns no data (port timeout) is retried.
func (s *serialSource) readLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.rest, '\n'); i >= 0 {
			line := string(s.rest[:i])
			s.rest = append(s.rest[:0], s.rest[i+1:]...)
			return line, nil
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w within %s (partial %q)", errNoReply, timeout, s.rest)
		}
		n, err := s.port.Read(buf)
		s.rest = append(s.rest, buf[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("sensor: read reply: %w", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (s *serialSource) Close() error {
	return s.port.Close()
}

// parseFrame decodes one bridge reply line.
func parseFrame(line string) (frame, error) {
	line = strings.TrimSpace(line)
	if line == "E" {
		return frame{}, errors.New("sensor: bridge reported read error")
	}

	tPart, hPart, ok := strings.Cut(line, ",")
	if !ok {
		return frame{}, fmt.Errorf("sensor: malformed reply %q", line)
	}
	t, err := parseField(tPart, "T=", "C")
	if err != nil {
		return frame{}, fmt.Errorf("sensor: temperature in %q: %w", line, err)
	}
	h, err := parseField(hPart, "H=", "%")
	if err != nil {
		return frame{}, fmt.Errorf("sensor: humidity in %q: %w", line, err)
	}
	if math.IsNaN(t) || math.IsNaN(h) {
		return frame{}, fmt.Errorf("sensor: NaN in reply %q", line)
	}
	return frame{humidity: h, temperature: t}, nil
}

func parseField(s, prefix, unit string) (float64, error) {
	v, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return 0, fmt.Errorf("missing %q", prefix)
	}
	v, ok = strings.CutSuffix(v, unit)
	if !ok {
		return 0, fmt.Errorf("missing unit %q", unit)
	}
	return strconv.ParseFloat(v, 64)
}

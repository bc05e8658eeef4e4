// Package logging configures the process-wide zerolog logger, optionally
// shipping warn-and-above records to a Papertrail remote syslog collector
// over TLS (a supplemental feature carried over from the original
// implementation's src/logger.rs).
package logging

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: JSON output to stdout at
// level, additionally fanned out to a Papertrail shipper when
// papertrailURL is non-empty. It returns a io.Closer that closes any
// remote connection; callers should defer its Close.
func Init(level, papertrailURL string) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		parsedLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsedLevel)

	writers := []io.Writer{os.Stdout}
	var shipper *PapertrailWriter
	if papertrailURL != "" {
		shipper, err = NewPapertrailWriter(papertrailURL)
		if err != nil {
			return nil, fmt.Errorf("logging: papertrail: %w", err)
		}
		writers = append(writers, shipper)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multi).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &logger
	// cmd/vecembed calls the package-level github.com/rs/zerolog/log
	// shorthand (log.Info(), log.Fatal(), ...), which operates on this var,
	// not on whatever zerolog.Ctx(ctx) would resolve to.
	zlog.Logger = logger

	if shipper == nil {
		return io.NopCloser(nil), nil
	}
	return shipper, nil
}

// PapertrailWriter frames each write as an RFC5424 syslog message and
// ships it over a long-lived TLS connection to a Papertrail endpoint
// (original: src/logger.rs). Each record is sent as soon as it is written,
// over the one connection dialed by NewPapertrailWriter rather than a new
// dial per log line.
type PapertrailWriter struct {
	conn     net.Conn
	addr     string
	hostname string
	appName  string
}

// NewPapertrailWriter dials addr (host:port, TLS) and prepares a writer
// that frames subsequent Write calls as syslog messages. The original
// implementation resolves its own outbound IP via an external api.ipify.org
// call for the RFC5424 HOSTNAME field; this implementation uses the best
// local interface address instead, avoiding an external dependency on the
// logging hot path (see DESIGN.md for the rationale).
func NewPapertrailWriter(addr string) (*PapertrailWriter, error) {
	conn, err := tlsDial(addr)
	if err != nil {
		return nil, err
	}
	host := localIP()
	return &PapertrailWriter{
		conn:     conn,
		addr:     addr,
		hostname: host,
		appName:  "vecembed",
	}, nil
}

// Write implements io.Writer, framing p as a single RFC5424 syslog message
// at a fixed facility/severity (local0.warning = 16*8+4 = 132) and sending
// it immediately. Records below warn level are dropped by WriteLevel before
// they get here; shipping is best-effort and errors here don't fail the
// original log call.
func (w *PapertrailWriter) Write(p []byte) (int, error) {
	const priority = 132 // facility local0 (16) * 8 + severity warning (4)
	msg := fmt.Sprintf("<%d>1 %s %s %s - - - %s\n",
		priority,
		time.Now().UTC().Format(time.RFC3339),
		w.hostname,
		w.appName,
		string(p),
	)
	if _, err := io.WriteString(w.conn, msg); err != nil {
		return len(p), nil // swallow shipping errors, local log output already happened
	}
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter so that only warn-and-above
// records are shipped; lower levels are dropped without error.
func (w *PapertrailWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// Close closes the TLS connection to Papertrail.
func (w *PapertrailWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

func tlsDial(addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return tls.DialWithDialer(d, "tcp", addr, &tls.Config{MinVersion: tls.VersionTLS12})
}

func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "unknown"
	}
	return addr.IP.String()
}

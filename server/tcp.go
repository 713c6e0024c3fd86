package server

import (
	"errors"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ResolveTCPAddr is like net.ResolveTCPAddr, but it accepts a leading "*"
// as the wildcard for all local interfaces.
func ResolveTCPAddr(addr string) (*net.TCPAddr, error) {
	if strings.HasPrefix(addr, "*") {
		addr = addr[1:]
	}
	return net.ResolveTCPAddr("tcp", addr)
}

func configTCP(conn *net.TCPConn, cfg *Config) error {
	if err := conn.SetNoDelay(cfg.NoDelay); err != nil {
		return err
	}
	if err := conn.SetKeepAlive(cfg.KeepAlive); err != nil {
		return err
	}
	if cfg.KeepAlive && cfg.KeepAlivePeriod > 0 {
		if err := conn.SetKeepAlivePeriod(cfg.KeepAlivePeriod); err != nil {
			return err
		}
	}
	return nil
}

// serve spins in a loop, accepting connections and passing them to handle
// until the listener is closed.
func (b *Base) serve(l *net.TCPListener, handle func(*net.TCPConn)) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "server").
			WithFields(log.Fields{"arch": b.arch, "addr": l.Addr().String(), "action": "start"}).
			Debug("accept")
	}
	for {
		tc, err := l.AcceptTCP()
		if err != nil {
			if !b.Running() || errors.Is(err, net.ErrClosed) {
				break
			}
			log.WithField("domain", "server").
				WithField("arch", b.arch).
				WithError(err).
				Warn("accept")
			// Debounce a little bit, to avoid thrashing the CPU.
			time.Sleep(time.Second / 100)
			continue
		}
		if err = configTCP(tc, b.Config); err != nil {
			log.WithField("domain", "server").
				WithField("arch", b.arch).
				WithError(err).
				Warn("config tcp")
			tc.Close()
			continue
		}
		b.Metrics.Accepted.Inc()
		handle(tc)
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "server").
			WithFields(log.Fields{"arch": b.arch, "addr": l.Addr().String(), "action": "end"}).
			Debug("accept")
	}
}

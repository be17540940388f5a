package backend

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Discover probes the candidate MPD addresses concurrently and returns
// the fastest one that answers with an MPD banner. The probe is a plain
// TCP connect plus banner read so that dead hosts cost nothing but the
// timeout.
func Discover(ctx context.Context, servers []string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type probe struct {
		addr    string
		version string
		rtt     time.Duration
		err     error
	}

	results := make(chan probe, len(servers))
	for _, addr := range servers {
		go func(addr string) {
			start := time.Now()
			version, err := ping(ctx, addr)
			results <- probe{addr: addr, version: version, rtt: time.Since(start), err: err}
		}(addr)
	}

	best := probe{rtt: timeout + time.Second}
	for range servers {
		p := <-results
		if p.err != nil {
			log.Debugf("MPD server %v not available: %v", p.addr, p.err)
			continue
		}
		log.Debugf("MPD server %v answered in %v (version %v)", p.addr, p.rtt, p.version)
		if p.rtt < best.rtt {
			best = p
		}
	}

	if best.addr == "" {
		return "", fmt.Errorf("no MPD server answered out of %v: %w", servers, ErrUnavailable)
	}
	log.Infof("Selected MPD server %v (version %v, %v)", best.addr, best.version, best.rtt)
	return best.addr, nil
}

// ping connects and reads the "OK MPD <version>" welcome line.
func ping(ctx context.Context, addr string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	banner, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read banner: %w", err)
	}
	banner = strings.TrimSpace(banner)
	if !strings.HasPrefix(banner, "OK MPD") {
		return "", fmt.Errorf("unexpected banner %q", banner)
	}
	return strings.TrimSpace(strings.TrimPrefix(banner, "OK MPD")), nil
}

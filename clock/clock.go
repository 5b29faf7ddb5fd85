// Package clock provides the wall clock used for block timestamps.
package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/kpango/fastime"

	"github.com/gm2017/hidecoin/logging"
)

var log = logging.New("CLK")

// System reads the local clock through fastime's cached timer.
type System struct{}

func (System) Now() time.Time {
	return fastime.Now()
}

// NTP is the local clock corrected by an offset measured against an NTP
// server. Until the first successful sync the offset is zero.
type NTP struct {
	server   string
	interval time.Duration
	query    func(server string) (time.Duration, error)

	offset atomic.Int64

	mtx      sync.Mutex
	lastSync time.Time
	lastErr  error
}

func NewNTP(server string, interval time.Duration) *NTP {
	return &NTP{
		server:   server,
		interval: interval,
		query:    queryOffset,
	}
}

func queryOffset(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

func (c *NTP) Now() time.Time {
	return fastime.Now().Add(c.Offset())
}

func (c *NTP) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Sync queries the server once and stores the new offset.
func (c *NTP) Sync() error {
	off, err := c.query(c.server)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err != nil {
		c.lastErr = err
		return err
	}
	c.offset.Store(int64(off))
	c.lastSync = time.Now()
	c.lastErr = nil
	return nil
}

// Status returns the time of the last successful sync and the last error.
func (c *NTP) Status() (time.Time, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lastSync, c.lastErr
}

// Run syncs immediately and then every interval until ctx is done. Failed
// syncs keep the previous offset.
func (c *NTP) Run(ctx context.Context) {
	doSync := func() {
		if err := c.Sync(); err != nil {
			log.Warnf("NTP sync with %s failed: %v", c.server, err)
			return
		}
		log.Debugf("Clock offset to %s is %v", c.server, c.Offset())
	}

	doSync()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doSync()
		}
	}
}

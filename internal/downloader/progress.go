package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const progressLogInterval = 30 * time.Second

// progressReader tracks bytes read from a response body, logs progress
// periodically and notifies onRead whenever data arrives.
type progressReader struct {
	reader     io.ReadCloser
	total      int64
	downloaded int64
	lastLog    time.Time
	logger     *slog.Logger
	onRead     func()
	mu         sync.Mutex
	closed     bool
}

func newProgressReader(r io.ReadCloser, total int64, logger *slog.Logger, onRead func()) *progressReader {
	return &progressReader{
		reader:  r,
		total:   total,
		lastLog: time.Now(),
		logger:  logger,
		onRead:  onRead,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n <= 0 {
		return n, err
	}

	if p.onRead != nil {
		p.onRead()
	}

	p.mu.Lock()
	p.downloaded += int64(n)
	if time.Since(p.lastLog) > progressLogInterval {
		p.logProgress(slog.LevelInfo)
		p.lastLog = time.Now()
	}
	p.mu.Unlock()

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.downloaded > 0 {
		p.logProgress(slog.LevelDebug)
	}
	p.mu.Unlock()

	return p.reader.Close()
}

// Downloaded returns the number of bytes read so far.
func (p *progressReader) Downloaded() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloaded
}

func (p *progressReader) logProgress(level slog.Level) {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Log(context.Background(), level, "download progress",
			"downloaded_kb", p.downloaded/1024,
			"total_kb", p.total/1024,
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
		return
	}
	p.logger.Log(context.Background(), level, "download progress",
		"downloaded_kb", p.downloaded/1024,
	)
}

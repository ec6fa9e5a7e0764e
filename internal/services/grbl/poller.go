package grbl

import (
	"context"
	"time"
)

// StartPolling периодически запрашивает отчет о статусе символом '?'.
// Ответы не сопоставляются с запросами: их разбирает HandleLine по форме строки.
// Возвращает канал, который закрывается после остановки опроса.
func (c *Controller) StartPolling(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.logger.Info("Status polling started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Status polling stopped")
				return
			case <-ticker.C:
				if !c.link.Connected() {
					continue
				}
				if err := c.link.SendRealtime(RTStatusQuery); err != nil {
					c.logger.Debug("Status query failed", "error", err)
				}
			}
		}
	}()
	return done
}

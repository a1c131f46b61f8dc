package server

import "time"

// StartTicker 启动房间的 Tick 循环（单线程推进世界）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.TickInterval())
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
			}
			start := time.Now()
			r.Step()
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}()
}

// Stop 停止 Tick 循环并等待正在执行的 Tick 结束（可重复调用）。
// 不可在 Tick 协程内调用。
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.tickerStarted {
		<-r.done
	}
}

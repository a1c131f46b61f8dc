package tick

// Tick 一次离散模拟步的编号，16 位回绕
type Tick uint16

// half 回绕比较的半程距离
const half = 1 << 15

// Next 下一个 Tick（溢出回绕到 0）
func (t Tick) Next() Tick { return t + 1 }

// Prev 上一个 Tick（0 回绕到 65535）
func (t Tick) Prev() Tick { return t - 1 }

// Newer 判断 a 是否严格新于 b，容忍回绕。
// 两者正好相距半程时两个方向都返回 false。
func Newer(a, b Tick) bool {
	return (a > b && a-b < half) || (a < b && b-a > half)
}

// NewerOrEqual a 新于或等于 b
func NewerOrEqual(a, b Tick) bool {
	return a == b || Newer(a, b)
}

// Diff 返回 a 相对 b 的有符号距离（a 新于 b 时为正）
func Diff(a, b Tick) int {
	return int(int16(a - b))
}

// Newest 返回一组 Tick 中最新的一个；空输入返回 (0, false)
func Newest(ticks ...Tick) (Tick, bool) {
	if len(ticks) == 0 {
		return 0, false
	}
	best := ticks[0]
	for _, t := range ticks[1:] {
		if Newer(t, best) {
			best = t
		}
	}
	return best, true
}

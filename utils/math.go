package utils

import "cmp"

// Clamp 将 x 限制在 [lo, hi] 区间内
func Clamp[T cmp.Ordered](x, lo, hi T) T {
	return min(max(x, lo), hi)
}

// PageSize 规范化分页大小: <=0 取默认值，超过上限取上限
func PageSize(limit, def, maxSize int) int {
	if limit <= 0 {
		return def
	}
	return Clamp(limit, 1, maxSize)
}

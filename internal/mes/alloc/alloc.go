// Package alloc 数量与容器分配
package alloc

import "fmt"

// SplitQuantity 将总量平均分成 n 份，不做余数再分配
func SplitQuantity(total float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("sub_lot_count 必须 >= 1，当前为 %d", n)
	}
	if total < 0 {
		return nil, fmt.Errorf("total_quantity 不能为负数: %v", total)
	}
	share := total / float64(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = share
	}
	return out, nil
}

// SplitContainers 容器数按子批次拆分：每份 floor(count/n)，前 count%n 份各多一个
func SplitContainers(count, n int) ([]int, error) {
	if n < 1 {
		return nil, fmt.Errorf("num_sub_batches 必须 >= 1，当前为 %d", n)
	}
	if count < 0 {
		return nil, fmt.Errorf("container_count 不能为负数: %d", count)
	}
	per := count / n
	remaining := count % n
	out := make([]int, n)
	for i := range out {
		out[i] = per
		if i < remaining {
			out[i]++
		}
	}
	return out, nil
}

// Partition 按 SplitContainers 的结果顺序切分实际记录
func Partition[T any](items []T, n int) ([][]T, error) {
	sizes, err := SplitContainers(len(items), n)
	if err != nil {
		return nil, err
	}
	out := make([][]T, n)
	offset := 0
	for i, size := range sizes {
		out[i] = items[offset : offset+size : offset+size]
		offset += size
	}
	return out, nil
}

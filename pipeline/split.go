package pipeline

import (
	"math"
	"math/rand/v2"
)

// DefaultSeed 固定随机种子，保证每次训练的划分一致
const DefaultSeed = 42

// Split 训练集/测试集行号
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit 打乱行号后取 ceil(n*testFraction) 行作为测试集，至少保留一行训练数据
func TrainTestSplit(n int, testFraction float64, seed uint64) Split {
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return Split{Train: perm[nTest:], Test: perm[:nTest]}
}

// Rows 按行号取子集
func Rows(matrix [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = matrix[j]
	}
	return out
}

// Values 按行号取目标值
func Values(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

package pipeline

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// CleaningRule 清洗规则，返回修正的单元格数量
type CleaningRule interface {
	Apply(*Frame) (int, []QualityIssue)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // low, medium, high
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Column    string    `json:"column"`
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules      []CleaningRule
	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	DroppedRows    int64            `json:"dropped_rows"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{
		rules:  make([]CleaningRule, 0),
		issues: make([]QualityIssue, 0),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	// 添加默认规则
	cleaner.AddRule(NewEmptyColumnRule())
	cleaner.AddRule(NewConstantColumnRule())
	cleaner.AddRule(NewMedianImputeRule())

	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean 依次应用所有规则，原地修改 frame
func (dc *DataCleaner) Clean(frame *Frame) []QualityIssue {
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	dc.stats.TotalProcessed += int64(frame.Rows())
	dc.stats.DroppedRows += int64(frame.DroppedRows)
	if frame.DroppedRows > 0 {
		issues = append(issues, QualityIssue{
			Type:      "missing_target",
			Severity:  "medium",
			Message:   fmt.Sprintf("dropped %d rows without a usable price", frame.DroppedRows),
			Timestamp: time.Now(),
			Column:    DefaultTargetColumn,
		})
		dc.stats.Issues["missing_target"]++
	}

	for _, rule := range dc.rules {
		corrected, ruleIssues := rule.Apply(frame)
		dc.stats.Corrected += int64(corrected)
		for range ruleIssues {
			dc.stats.Issues[rule.Name()]++
		}
		issues = append(issues, ruleIssues...)
	}

	dc.issuesLock.Lock()
	dc.issues = append(dc.issues, issues...)
	dc.issuesLock.Unlock()

	dc.stats.LastClean = time.Now()
	return issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues 获取问题列表
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.issuesLock.RLock()
	defer dc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}

	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// ClearIssues 清空问题列表
func (dc *DataCleaner) ClearIssues() {
	dc.issuesLock.Lock()
	defer dc.issuesLock.Unlock()

	dc.issues = make([]QualityIssue, 0)
}

// ============ 清洗规则实现 ============

// MedianImputeRule 数值列缺失值用中位数填充，全缺失的列填 0
type MedianImputeRule struct{}

// NewMedianImputeRule 创建中位数填充规则
func NewMedianImputeRule() *MedianImputeRule {
	return &MedianImputeRule{}
}

func (r *MedianImputeRule) Name() string {
	return "median_impute"
}

func (r *MedianImputeRule) Apply(frame *Frame) (int, []QualityIssue) {
	corrected := 0
	var issues []QualityIssue
	for _, col := range frame.Columns {
		if col.Kind != Numeric {
			continue
		}
		missing := col.MissingCount()
		if missing == 0 {
			continue
		}
		fill := ImputeMedian(col)
		corrected += missing
		issues = append(issues, QualityIssue{
			Type:      r.Name(),
			Severity:  "low",
			Message:   fmt.Sprintf("filled %d missing values with %g", missing, fill),
			Timestamp: time.Now(),
			Column:    col.Name,
		})
	}
	return corrected, issues
}

// ImputeMedian 用非缺失值的中位数填充缺失值，返回填充值
func ImputeMedian(col *Column) float64 {
	present := make([]float64, 0, len(col.Values))
	for i, v := range col.Values {
		if !col.Missing[i] {
			present = append(present, v)
		}
	}
	fill := calculateMedian(present)
	for i := range col.Values {
		if col.Missing[i] {
			col.Values[i] = fill
			col.Missing[i] = false
		}
	}
	return fill
}

// calculateMedian 计算中位数
func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// EmptyColumnRule 报告完全缺失的列
type EmptyColumnRule struct{}

// NewEmptyColumnRule 创建空列检测规则
func NewEmptyColumnRule() *EmptyColumnRule {
	return &EmptyColumnRule{}
}

func (r *EmptyColumnRule) Name() string {
	return "empty_column"
}

func (r *EmptyColumnRule) Apply(frame *Frame) (int, []QualityIssue) {
	var issues []QualityIssue
	for _, col := range frame.Columns {
		if col.MissingCount() == len(col.Missing) {
			issues = append(issues, QualityIssue{
				Type:      r.Name(),
				Severity:  "high",
				Message:   "column has no values",
				Timestamp: time.Now(),
				Column:    col.Name,
			})
		}
	}
	return 0, issues
}

// ConstantColumnRule 报告只有一个取值的列，这类列对模型没有贡献
type ConstantColumnRule struct{}

// NewConstantColumnRule 创建常量列检测规则
func NewConstantColumnRule() *ConstantColumnRule {
	return &ConstantColumnRule{}
}

func (r *ConstantColumnRule) Name() string {
	return "constant_column"
}

func (r *ConstantColumnRule) Apply(frame *Frame) (int, []QualityIssue) {
	var issues []QualityIssue
	for _, col := range frame.Columns {
		distinct := make(map[string]struct{})
		for i := range col.Missing {
			if col.Missing[i] {
				continue
			}
			if col.Kind == Numeric {
				distinct[fmt.Sprint(col.Values[i])] = struct{}{}
			} else {
				distinct[col.Labels[i]] = struct{}{}
			}
		}
		if len(distinct) == 1 {
			issues = append(issues, QualityIssue{
				Type:      r.Name(),
				Severity:  "low",
				Message:   "column has a single distinct value",
				Timestamp: time.Now(),
				Column:    col.Name,
			})
		}
	}
	return 0, issues
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

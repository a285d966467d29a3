// Package analysis はテストデータに対する予測器の評価を行い、
// 曲線の画像と1行のレポート表を出力する。
package analysis

import (
	"context"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/matrixio"
)

// DefaultConfidence は信頼区間の既定の水準
const DefaultConfidence = 0.95

// Report は評価の結果
type Report struct {
	// Row は1行のレポート表
	Row *table.Table
	// Files は書き出したファイルのパス
	Files []string
}

// Analyzer は予測器をテストデータで評価する
type Analyzer interface {
	Analyze(ctx context.Context, p learn.Predictor, X *table.Table, y *table.Column, dir, prefix string) (*Report, error)
}

// Paths は prefix から決まる出力ファイル名
type Paths struct {
	ROC             string
	PrecisionRecall string
	PrecisionAtK    string
	Report          string
}

// PathsFor は dir 以下の出力ファイルのパスを返す
func PathsFor(dir, prefix string) Paths {
	return Paths{
		ROC:             filepath.Join(dir, prefix+"-roc-plot.png"),
		PrecisionRecall: filepath.Join(dir, prefix+"-precision-recall-plot.png"),
		PrecisionAtK:    filepath.Join(dir, prefix+"-precision-at-k-plot.png"),
		Report:          filepath.Join(dir, prefix+"-report.tab"),
	}
}

// writeReport はレポート表をファイル名と作成日時の見出し付きで書き出す
func writeReport(row *table.Table, path string, now time.Time, description string) error {
	header := []string{
		filepath.Base(path),
		"Created: " + now.Format("2006-01-02 15:04"),
		"Model: " + description,
	}
	return matrixio.Write(row, path, header)
}

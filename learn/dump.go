package learn

import (
	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
)

// dump はインターフェース値のまま gob で保存するための入れ物
type dump struct {
	Predictor Predictor
}

// SaveDump は予測器を path に保存する。書き込みは全か無か。
func SaveDump(p Predictor, path string) error {
	return model.SaveModel(&dump{Predictor: p}, path)
}

// LoadDump は SaveDump で保存した予測器を読み込む。
// ファイルがなければ NotFoundError を返す。
func LoadDump(path string) (Predictor, error) {
	var d dump
	if err := model.LoadModel(&d, path); err != nil {
		return nil, err
	}
	if d.Predictor == nil {
		return nil, errors.NewValueError("learn.LoadDump", "model dump holds no predictor: "+path)
	}
	return d.Predictor, nil
}

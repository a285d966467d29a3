package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	perrors "github.com/YuminosukeSato/medpipe/pkg/errors"
)

// SaveModel はモデルを gob 形式でファイルに保存する。
// 同じディレクトリの一時ファイルに書き込んでから rename するため、
// 書き込み途中のファイルが filename に現れることはない。
//
// 使用例:
//
//	err := model.SaveModel(predictor, "data/lab.bnp/lab.bnp-l2-logistic-regression-model.gob")
func SaveModel(m interface{}, filename string) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create model directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temporary model file")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = SaveModelToWriter(m, tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync model file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close model file")
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return errors.Wrapf(err, "rename model file to %s", filename)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む。ファイルが存在しない場合は NotFoundError を返す。
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return perrors.NewNotFoundError(filename)
		}
		return errors.Wrapf(err, "open model file %s", filename)
	}
	defer file.Close()
	return LoadModelFromReader(m, file)
}

// SaveModelToWriter はモデルを io.Writer に保存する
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は io.Reader からモデルを読み込む
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

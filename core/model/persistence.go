package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/mlops-project/trainer/pkg/errors"
)

// artifact is the on-disk envelope. Holding the model in an interface field
// lets LoadPath restore the concrete estimator type without the caller
// knowing it; every estimator registers itself with gob.Register.
type artifact struct {
	Model interface{}
}

// SaveModel はモデルをio.Writerにgob形式で保存する
func SaveModel(model interface{}, w io.Writer) error {
	if model == nil {
		return errors.NewValueError("SaveModel", "model is nil")
	}
	if err := gob.NewEncoder(w).Encode(&artifact{Model: model}); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModel はio.Readerからモデルを読み込む
func LoadModel(r io.Reader) (interface{}, error) {
	var a artifact
	if err := gob.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	return a.Model, nil
}

// SavePath はモデルをファイルに保存する。親ディレクトリが存在しない場合は作成し、
// 一時ファイルに書き込んでからリネームする。
//
// 使用例:
//
//	err := model.SavePath("artifacts/model.pkl", best)
func SavePath(path string, model interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if err := SaveModel(model, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move model to %s", path)
	}
	return nil
}

// LoadPath はファイルからモデルを読み込む
func LoadPath(path string) (interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return LoadModel(file)
}

// LoadRegressor はLoadPathで読み込んだ値をRegressorとして返す
func LoadRegressor(path string) (Regressor, error) {
	obj, err := LoadPath(path)
	if err != nil {
		return nil, err
	}
	reg, ok := obj.(Regressor)
	if !ok {
		return nil, errors.NewModelError("LoadRegressor", "artifact is not a regressor", errors.Newf("got %T", obj))
	}
	return reg, nil
}

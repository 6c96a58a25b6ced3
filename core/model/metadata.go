package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/mlops-project/trainer/pkg/errors"
)

// MetadataVersion はメタデータ形式のバージョン（互換性チェック用）
const MetadataVersion = "1"

// ArtifactMetadata はモデルアーティファクトに付随するJSONメタデータ
type ArtifactMetadata struct {
	// ModelName はレジストリ上のモデル名（例: "Random Forest"）
	ModelName string `json:"model_name"`

	// ModelType はGoの型名（例: "*ensemble.RandomForestRegressor"）
	ModelType string `json:"model_type"`

	Version string `json:"version"`

	// Checksum はアーティファクトのSHA-256
	Checksum string `json:"checksum"`

	TestScore  float64 `json:"test_score"`
	TrainScore float64 `json:"train_score"`
	NFeatures  int     `json:"n_features"`

	// Standardized は特徴量が標準化されて学習されたかどうか。trueの場合、
	// 予測時にScalerChecksumと一致するスケーラーを適用しなければならない
	Standardized   bool   `json:"standardized"`
	ScalerChecksum string `json:"scaler_checksum,omitempty"`

	// Hyperparameters はグリッドサーチで選ばれたパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MetadataPath はアーティファクトに対応するメタデータのパスを返す
func MetadataPath(artifactPath string) string {
	return artifactPath + ".meta.json"
}

// ToJSON はメタデータをJSON形式にシリアライズ
func (m *ArtifactMetadata) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON はJSON形式からメタデータをデシリアライズ
func (m *ArtifactMetadata) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// Validate はメタデータの妥当性を検証
func (m *ArtifactMetadata) Validate() error {
	if m.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", m.ModelType)
	}
	if m.Version != MetadataVersion {
		return errors.NewValidationError("version", "unsupported metadata version", m.Version)
	}
	if len(m.Checksum) != sha256.Size*2 {
		return errors.NewValidationError("checksum", "must be a hex encoded sha256", m.Checksum)
	}
	if m.Standardized && len(m.ScalerChecksum) != sha256.Size*2 {
		return errors.NewValidationError("scaler_checksum", "must be a hex encoded sha256 when standardized", m.ScalerChecksum)
	}
	return nil
}

// Checksum はファイルのSHA-256を16進文字列で返す
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open artifact")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "failed to hash artifact")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteMetadata はアーティファクトのチェックサムを計算し、メタデータを書き出す
func WriteMetadata(artifactPath string, m *ArtifactMetadata) error {
	sum, err := Checksum(artifactPath)
	if err != nil {
		return err
	}
	m.Checksum = sum
	m.Version = MetadataVersion
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := m.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}
	if err := os.WriteFile(MetadataPath(artifactPath), data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write metadata")
	}
	return nil
}

// ReadMetadata はメタデータを読み込み、アーティファクトのチェックサムと照合する
func ReadMetadata(artifactPath string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(MetadataPath(artifactPath))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}
	var m ArtifactMetadata
	if err := m.FromJSON(data); err != nil {
		return nil, errors.Wrap(err, "failed to decode metadata")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	sum, err := Checksum(artifactPath)
	if err != nil {
		return nil, err
	}
	if sum != m.Checksum {
		return nil, errors.NewModelError("ReadMetadata", "checksum mismatch", errors.Newf("expected %s, got %s", m.Checksum, sum))
	}
	return &m, nil
}

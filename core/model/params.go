package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mlops-project/trainer/pkg/errors"
)

// ParamInt coerces a hyperparameter value to int. Values may come from Go
// code (int, int64, float64) or from YAML/JSON decoding.
func ParamInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be an integer", v)
		}
		return n, nil
	default:
		return 0, errors.NewValidationError(name, fmt.Sprintf("unsupported type %T", v), v)
	}
}

// ParamFloat coerces a hyperparameter value to float64.
func ParamFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.NewValidationError(name, "must be a number", v)
		}
		return f, nil
	default:
		return 0, errors.NewValidationError(name, fmt.Sprintf("unsupported type %T", v), v)
	}
}

// ParamString coerces a hyperparameter value to string.
func ParamString(name string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(name, "must be a string", v)
	}
	return s, nil
}

// ParamBool coerces a hyperparameter value to bool.
func ParamBool(name string, v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errors.NewValidationError(name, "must be a boolean", v)
		}
		return b, nil
	default:
		return false, errors.NewValidationError(name, "must be a boolean", v)
	}
}

// UnknownParam returns the error reported for a parameter the estimator does
// not have.
func UnknownParam(estimator, name string) error {
	return errors.NewValidationError(name, "invalid parameter for estimator "+estimator, nil)
}

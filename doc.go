// Package trainer selects, gates and persists the best regression model for a
// pair of pre-split numeric train/test arrays.
//
// Eight candidate regressors are grid-searched with K-fold cross-validation on
// the training data, refitted with their best parameters and scored by R² on
// the held-out data. The highest test score wins; it must exceed the quality
// gate (0.6 by default) before the model is written to artifacts/model.pkl.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/mlops-project/trainer/dataset"
//	    "github.com/mlops-project/trainer/pipeline"
//	)
//
//	func main() {
//	    train, err := dataset.LoadCSV("artifacts/train.csv", true)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    test, err := dataset.LoadCSV("artifacts/test.csv", true)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    trainer := pipeline.NewModelTrainer(pipeline.DefaultModelTrainerConfig())
//	    score, err := trainer.InitiateModelTrainer(train, test)
//	    if err != nil {
//	        log.Fatal(err) // always a *errors.TrainerError
//	    }
//	    fmt.Println(trainer.BestModelName(), score)
//	}
//
// # Packages
//
//   - pipeline: model registry, evaluation, quality gate and persistence
//   - pipeline/history: bbolt-backed run history
//   - pipeline/telemetry: Prometheus collectors written to a textfile
//   - pipeline/chart: bar chart of the test scores
//   - sklearn/...: the candidate estimators and model_selection (KFold, GridSearchCV)
//   - metrics: regression metrics (MSE, RMSE, MAE, R²)
//   - dataset, preprocessing: CSV loading and StandardScaler
//   - core/model: estimator interfaces, parameter coercion, gob persistence
//   - core/parallel: worker pool helpers
//   - pkg/config, pkg/errors, pkg/log: configuration, error types, logging
//
// The cmd/trainer command wraps the pipeline with train, predict and history
// subcommands.
package trainer

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Keys every training configuration must (or may) define.
const (
	KeyExpName   = "expname"
	KeyRunName   = "runname"
	KeyNEpochs   = "n_epochs"
	KeyLR        = "lr"
	KeyBatchSize = "batch_size"
)

// Train is the typed view of the keys the orchestrator and training loop
// read. Other keys in the tree are still logged as parameters.
type Train struct {
	ExpName   string
	RunName   string
	NEpochs   int
	LR        float64
	BatchSize int
}

// DecodeTrain extracts and validates the training keys. Every problem is
// reported, not only the first one.
func DecodeTrain(t Tree) (*Train, error) {
	var (
		train Train
		errs  []error
	)

	if err := decodeKey(t, KeyExpName, cty.String, true, &train.ExpName); err != nil {
		errs = append(errs, err)
	} else if err := validateExpName(train.ExpName); err != nil {
		errs = append(errs, err)
	}

	if err := decodeKey(t, KeyRunName, cty.String, false, &train.RunName); err != nil {
		errs = append(errs, err)
	}

	if err := decodeKey(t, KeyNEpochs, cty.Number, true, &train.NEpochs); err != nil {
		errs = append(errs, err)
	} else if train.NEpochs < 0 {
		errs = append(errs, fmt.Errorf("'%s' must be >= 0, got %d", KeyNEpochs, train.NEpochs))
	}

	if err := decodeKey(t, KeyLR, cty.Number, true, &train.LR); err != nil {
		errs = append(errs, err)
	}

	if err := decodeKey(t, KeyBatchSize, cty.Number, true, &train.BatchSize); err != nil {
		errs = append(errs, err)
	} else if train.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("'%s' must be > 0, got %d", KeyBatchSize, train.BatchSize))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &train, nil
}

// decodeKey converts the value at key to ty and decodes it into target.
// An optional key that is absent or null leaves target untouched.
func decodeKey(t Tree, key string, ty cty.Type, required bool, target any) error {
	val, ok := t.Get(key)
	if !ok || val.IsNull() {
		if required {
			return fmt.Errorf("missing required key '%s'", key)
		}
		return nil
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return fmt.Errorf("'%s' must be a %s: %w", key, ty.FriendlyName(), err)
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		return fmt.Errorf("'%s': %w", key, err)
	}
	return nil
}

// validateExpName rejects names that cannot serve as a single directory
// component under the outputs and artifact roots.
func validateExpName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("'%s' must not be empty", KeyExpName)
	case name == "." || name == "..", strings.ContainsAny(name, `/\`):
		return fmt.Errorf("'%s' must be a plain name without path separators, got %q", KeyExpName, name)
	}
	return nil
}

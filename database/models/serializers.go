package models

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/lightningnetwork/lnd/lntypes"
	"gorm.io/gorm/schema"
)

// PreimageSerializer stores a *lntypes.Preimage as hex, NULL when unset.
type PreimageSerializer struct{}

func (PreimageSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	target := field.ReflectValueOf(ctx, dst)

	str, err := dbString(dbValue)
	if err != nil {
		return fmt.Errorf("failed to cast preimage value: %w", err)
	}
	if str == "" {
		target.Set(reflect.Zero(field.FieldType))

		return nil
	}

	preimage, err := lntypes.MakePreimageFromStr(str)
	if err != nil {
		return fmt.Errorf("failed to parse preimage: %w", err)
	}
	target.Set(reflect.ValueOf(&preimage))

	return nil
}

func (PreimageSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil {
		return nil, nil
	}

	preimage, ok := fieldValue.(*lntypes.Preimage)
	if !ok {
		return nil, errors.New("invalid preimage value: not a *lntypes.Preimage")
	}
	if preimage == nil {
		return nil, nil
	}

	return preimage.String(), nil
}

// HashSerializer stores an lntypes.Hash as hex.
type HashSerializer struct{}

func (HashSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	str, err := dbString(dbValue)
	if err != nil {
		return fmt.Errorf("failed to cast hash value: %w", err)
	}
	if str == "" {
		return nil
	}

	hash, err := lntypes.MakeHashFromStr(str)
	if err != nil {
		return fmt.Errorf("failed to parse hash: %w", err)
	}
	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(hash))

	return nil
}

func (HashSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	hash, ok := fieldValue.(lntypes.Hash)
	if !ok {
		return nil, errors.New("invalid hash value: not an lntypes.Hash")
	}

	return hash.String(), nil
}

func dbString(dbValue interface{}) (string, error) {
	switch v := dbValue.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unexpected type %T", dbValue)
	}
}

func RegisterSerializers() {
	schema.RegisterSerializer("preimage", PreimageSerializer{})
	schema.RegisterSerializer("hash", HashSerializer{})
}

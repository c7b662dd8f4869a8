package memstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/conduit-lang/ormcore/internal/orm/deletion"
	"github.com/conduit-lang/ormcore/internal/orm/schema"
)

// ErrInvalidValue is returned when a value does not fit its property type
var ErrInvalidValue = errors.New("invalid value")

// normalize converts v to the canonical Go type of p: uuid.UUID for uuid
// properties and int64 for integer properties. Other values are kept.
func normalize(p *schema.Property, v any) (any, error) {
	if v == nil || p == nil {
		return v, nil
	}

	switch {
	case p.Type == schema.TypeUUID:
		return normalizeUUID(v)
	case p.Type.IsInteger():
		return normalizeInt(v)
	default:
		return v, nil
	}
}

func normalizeUUID(v any) (any, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a uuid: %v", ErrInvalidValue, id, err)
		}
		return parsed, nil
	case []byte:
		if len(id) == 16 {
			return uuid.FromBytes(id)
		}
		parsed, err := uuid.ParseBytes(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a uuid: %v", ErrInvalidValue, id, err)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a uuid", ErrInvalidValue, v)
	}
}

func normalizeInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, n)
		}
		return int64(n), nil
	default:
		return nil, fmt.Errorf("%w: %T is not an integer", ErrInvalidValue, v)
	}
}

// keyID normalizes key and returns its map index
func keyID(p *schema.Property, key any) (string, error) {
	if key == nil {
		return "", deletion.ErrNilKey
	}
	nk, err := normalize(p, key)
	if err != nil {
		return "", err
	}
	return deletion.KeyString(nk), nil
}

// keySet indexes the non-null keys
func keySet(p *schema.Property, keys []any) (map[string]bool, error) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == nil {
			continue
		}
		id, err := keyID(p, k)
		if err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, nil
}

// Package typeid provides prefixed, string-encoded identifiers for domain
// entities (e.g. "esign_template_7b2e...", "esign_envelope_9f01...").
//
// The prefix makes ids self-describing in logs and URLs without needing a
// lookup; the underlying value is a google/uuid v4.
package typeid

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a prefixed identifier for the entity named by Prefix.
type ID[Prefix prefix] struct {
	uuid uuid.UUID
}

// prefix is implemented by marker types naming an id's namespace.
type prefix interface {
	Prefix() string
}

// New allocates a fresh, random ID.
func New[P prefix]() ID[P] {
	return ID[P]{uuid: uuid.New()}
}

// Nil reports the zero-valued ID for P.
func Nil[P prefix]() ID[P] {
	return ID[P]{}
}

// IsNil reports whether id is the zero value (unset).
func (id ID[P]) IsNil() bool {
	return id.uuid == uuid.Nil
}

func (id ID[P]) prefixString() string {
	var p P
	return p.Prefix()
}

// String renders the id as "<prefix>_<uuid>".
func (id ID[P]) String() string {
	return id.prefixString() + "_" + id.uuid.String()
}

// Parse decodes a previously-rendered "<prefix>_<uuid>" string.
func Parse[P prefix](s string) (ID[P], error) {
	var zero ID[P]
	want := zero.prefixString() + "_"
	if !strings.HasPrefix(s, want) {
		return zero, fmt.Errorf("typeid: %q does not have prefix %q", s, want)
	}
	u, err := uuid.Parse(strings.TrimPrefix(s, want))
	if err != nil {
		return zero, fmt.Errorf("typeid: %w", err)
	}
	return ID[P]{uuid: u}, nil
}

// MustParse is like Parse but panics on error; used for compile-time-known
// literals such as in tests.
func MustParse[P prefix](s string) ID[P] {
	id, err := Parse[P](s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler for JSON/YAML encoding.
func (id ID[P]) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID[P]) UnmarshalText(b []byte) error {
	parsed, err := Parse[P](string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer so IDs can be written as text columns.
func (id ID[P]) Value() (driver.Value, error) {
	if id.IsNil() {
		return nil, nil
	}
	return id.String(), nil
}

// Scan implements sql.Scanner for reading text columns back into an ID.
func (id *ID[P]) Scan(src any) error {
	if src == nil {
		*id = ID[P]{}
		return nil
	}
	switch v := src.(type) {
	case string:
		parsed, err := Parse[P](v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		return id.Scan(string(v))
	default:
		return fmt.Errorf("typeid: cannot scan %T", src)
	}
}

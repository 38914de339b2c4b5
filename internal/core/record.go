package core

import (
	"encoding/binary"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Identifiable is a row with a store-assigned integer identity.
// Identity is zero until the row has been inserted.
type Identifiable interface {
	Identity() int64
	SetIdentity(id int64)
}

// Importable is the duplicate-detection contract for imported rows.
//
// ImportEquals decides whether two rows are the same logical record,
// independent of identity. It must be reflexive and symmetric, and must
// return an error wrapping ErrInvalidComparison (never plain false) when
// other is nil or of a different type.
//
// ImportHash must be consistent with ImportEquals: rows that are import-equal
// hash to the same value.
type Importable interface {
	ImportEquals(other any) (bool, error)
	ImportHash() uint64
}

// Record is the full capability set a type needs to flow through an
// Importer. T is the record type itself, normally a pointer to a struct.
type Record[T any] interface {
	Identifiable
	Importable

	// CompareDefault orders rows for presentation only.
	CompareDefault(other T) int
}

// Dependent is a child row owned by a parent of type P. The parent link is
// a non-owning back-reference used only to propagate the parent's identity
// into the foreign key after the parent insert.
type Dependent[P any] interface {
	Parent() P
	SetParent(parent P)
	ParentIdentity() int64
	SetParentIdentity(id int64)
}

// IsImportEqual compares two rows under import equality.
// Either operand being nil is an ErrInvalidComparison.
func IsImportEqual[T Importable](a, b T) (bool, error) {
	if isNil(a) {
		return false, InvalidComparison("import equality", a)
	}
	return a.ImportEquals(b)
}

// DefaultOrder returns a copy of items sorted by CompareDefault.
func DefaultOrder[T Record[T]](items []T) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return a.CompareDefault(b)
	})
	return sorted
}

// ImportHasher accumulates the fields of an import key into an xxhash
// digest. Records use it so their hash covers exactly the fields their
// ImportEquals compares.
type ImportHasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewImportHasher returns an empty hasher.
func NewImportHasher() *ImportHasher {
	return &ImportHasher{d: xxhash.New()}
}

// String adds a string field. A separator keeps ("ab","c") and ("a","bc") apart.
func (h *ImportHasher) String(s string) *ImportHasher {
	_, _ = h.d.WriteString(s)
	_, _ = h.d.Write([]byte{0})
	return h
}

// Fold adds a string field case-insensitively and ignoring surrounding space.
func (h *ImportHasher) Fold(s string) *ImportHasher {
	return h.String(strings.ToLower(strings.TrimSpace(s)))
}

// Int adds an integer field.
func (h *ImportHasher) Int(v int64) *ImportHasher {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(v))
	_, _ = h.d.Write(h.buf[:])
	return h
}

// Date adds the calendar date of t, ignoring time of day.
func (h *ImportHasher) Date(t time.Time) *ImportHasher {
	y, m, d := t.Date()
	return h.Int(int64(y)).Int(int64(m)).Int(int64(d))
}

// Sum64 returns the hash of all fields added so far.
func (h *ImportHasher) Sum64() uint64 {
	return h.d.Sum64()
}

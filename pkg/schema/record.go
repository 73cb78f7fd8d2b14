// Package schema defines the data structures shared by the record store engine,
// its transports and its clients.
package schema

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the fixed size of a record content hash.
const HashSize = 32

// KeySize is the fixed size of a record encryption key.
const KeySize = 32

// Principal identifies a caller or an authority.
type Principal string

// Category classifies a record.
type Category string

const (
	CategoryLabResults    Category = "lab-results"
	CategoryPrescriptions Category = "prescriptions"
	CategoryDiagnoses     Category = "diagnoses"
	CategoryImaging       Category = "imaging"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryLabResults,
	CategoryPrescriptions,
	CategoryDiagnoses,
	CategoryImaging,
}

// Valid reports whether c is one of the accepted categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Hash is a record content fingerprint. It is a value type so it can key maps.
type Hash [HashSize]byte

// HashFromBytes converts b into a Hash. ok is false when b has the wrong length.
func HashFromBytes(b []byte) (h Hash, ok bool) {
	if len(b) != HashSize {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	return decodeFixed(h[:], text)
}

// Key is a record encryption key.
type Key [KeySize]byte

// KeyFromBytes converts b into a Key. ok is false when b has the wrong length.
func KeyFromBytes(b []byte) (k Key, ok bool) {
	if len(b) != KeySize {
		return k, false
	}
	copy(k[:], b)
	return k, true
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	return decodeFixed(k[:], text)
}

// HexBytes is a variable length byte string encoded as hex in JSON.
// Request payloads use it so that malformed lengths survive decoding and
// reach validation.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	out, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = out
	return nil
}

func decodeFixed(dst []byte, text []byte) error {
	out, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(out))
	}
	copy(dst, out)
	return nil
}

// Identity holds the fields fixed when a record is created.
type Identity struct {
	Owner         Principal `json:"owner"`
	Hash          Hash      `json:"record_hash"`
	Timestamp     uint64    `json:"timestamp"`
	Size          uint64    `json:"size"`
	EncryptionKey Key       `json:"encryption_key"`
	Version       uint32    `json:"version"`
}

// Presentation holds the record fields an owner may change.
type Presentation struct {
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Status   bool     `json:"status"`
}

// Record is a stored record. Identity never changes after creation; only
// Presentation is replaced by updates.
type Record struct {
	ID uint64 `json:"id"`
	Identity
	Presentation
}

// Metadata is the mutable companion of a record.
type Metadata struct {
	Description string `json:"description"`
	LastUpdated uint64 `json:"last_updated"`
	AccessCount uint64 `json:"access_count"`
}

// NewRecord is the input of a store operation.
type NewRecord struct {
	Hash          HexBytes `json:"record_hash"`
	Title         string   `json:"title"`
	Timestamp     uint64   `json:"timestamp"`
	Category      Category `json:"category"`
	Size          uint64   `json:"size"`
	Status        bool     `json:"status"`
	EncryptionKey HexBytes `json:"encryption_key"`
	Version       uint32   `json:"version"`
	Description   string   `json:"description"`
}

// MetadataUpdate is the input of an update operation.
type MetadataUpdate struct {
	Presentation
	Description string `json:"description"`
}

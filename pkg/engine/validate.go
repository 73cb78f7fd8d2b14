package engine

import (
	"unicode/utf8"

	"github.com/celerix-dev/celerix-records/pkg/schema"
)

// validateNewRecord applies the store rules in order and returns the first
// violation. The duplicate and capacity checks need store state and are done
// by the caller.
func validateNewRecord(height uint64, req schema.NewRecord) (schema.Hash, schema.Key, error) {
	hash, ok := schema.HashFromBytes(req.Hash)
	if !ok {
		return schema.Hash{}, schema.Key{}, ErrInvalidRecordHash
	}
	if !validTitle(req.Title) {
		return schema.Hash{}, schema.Key{}, ErrInvalidTitle
	}
	if req.Timestamp < height {
		return schema.Hash{}, schema.Key{}, ErrInvalidTimestamp
	}
	if !req.Category.Valid() {
		return schema.Hash{}, schema.Key{}, ErrInvalidCategory
	}
	if req.Size > MaxRecordSize {
		return schema.Hash{}, schema.Key{}, ErrInvalidSize
	}
	key, ok := schema.KeyFromBytes(req.EncryptionKey)
	if !ok {
		return schema.Hash{}, schema.Key{}, ErrInvalidEncryptionKey
	}
	if req.Version > MaxVersion {
		return schema.Hash{}, schema.Key{}, ErrInvalidVersion
	}
	if !validDescription(req.Description) {
		return schema.Hash{}, schema.Key{}, ErrInvalidMetadata
	}
	return hash, key, nil
}

func validateUpdate(upd schema.MetadataUpdate) error {
	if !validTitle(upd.Title) {
		return ErrInvalidTitle
	}
	if !upd.Category.Valid() {
		return ErrInvalidCategory
	}
	if !validDescription(upd.Description) {
		return ErrInvalidMetadata
	}
	return nil
}

// Lengths are counted in characters, not bytes.
func validTitle(title string) bool {
	n := utf8.RuneCountInString(title)
	return n > 0 && n <= MaxTitleLength
}

func validDescription(desc string) bool {
	return utf8.RuneCountInString(desc) <= MaxDescriptionLength
}

func validAuthority(p schema.Principal) bool {
	return p != "" && p != BurnPrincipal
}

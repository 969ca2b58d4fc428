// Package shardkey extracts and, when necessary, generates the value a
// document is sharded on. It is a small helper used by the router, so
// that exactly what "the shard key of this document" means is defined in
// one place.
package shardkey

import (
	"github.com/google/uuid"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

// Extract reads field from doc and canonicalizes it into a hashable
// string. The second return value is false if the field is absent.
func Extract(doc docvalue.Value, field string) (string, bool, error) {
	val, ok := doc.Field(field)
	if !ok {
		return "", false, nil
	}
	key, err := val.CanonicalString()
	if err != nil {
		return "", true, err
	}
	return key, true, nil
}

// Generate produces a fresh, globally unique key for a document whose
// shard key field was left unset by the caller.
func Generate() string {
	return uuid.NewString()
}

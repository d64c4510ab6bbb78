package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainDocument separates document hashes from any other hash that might be
// computed over the same canonical bytes.
const DomainDocument = "rulegraph/document/v" + FormatVersion

// hashWithDomain returns hex(SHA256(domain || 0x00 || data)). The zero byte
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash is the content address of a document: two documents hash
// equal exactly when their canonical JSON is byte-identical.
func DocumentHash(doc *Document) (string, error) {
	canonical, err := doc.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("DocumentHash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// ElementHash hashes an element tree with the same scheme as DocumentHash.
// The rule backend uses it for documents it received over the wire.
func ElementHash(el *Element) (string, error) {
	canonical, err := MarshalCanonical(el.Value())
	if err != nil {
		return "", fmt.Errorf("ElementHash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// Package ir defines the rule document produced from a rule graph.
//
// A Document wraps one operator tree, expressed as the tagged variant
// Input | TransformInput | Compare | Aggregate. Documents are encoded into a
// neutral element tree (Element) which has two wire forms:
//   - XML, the form consumed by the rule backend
//   - canonical JSON (sorted keys, NFC strings, no floats), used for golden
//     files and content addressing (DocumentHash)
//
// ir imports nothing internal.
package ir

// Package document models the nested mapping/sequence/scalar trees that flow
// through the conversion pipeline. Trees keep mapping keys in document order so
// rendered output mirrors the template layout, and they can be decoded from and
// encoded back to JSON or YAML without losing that order.
package document

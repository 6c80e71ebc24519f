// Package schema maps collections to the named primary-key fields a storage
// backend expects.
//
// Collections are declared in CUE:
//
//	collection: lists: pk: "pk"
//	collection: listEntry: pk: ["list", "pos"]
//
// A Registry resolves a log entry's pk value into those fields. Compound
// keys are tuples whose elements are zipped, in order, with the declared
// field names.
package schema

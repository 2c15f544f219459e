// Package types defines the shared data model for the codequery search
// engine: the Match result shape common to every index, the immutable
// SearchConfig value passed into each search call, the SearchResult and
// AggregateResult envelopes, and dependency records.
//
// Types here carry no behavior beyond validation and small accessors so
// that every internal package can depend on them without cycles.
package types

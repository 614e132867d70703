// Package fulfillment defines the core records, status model and collaborator
// contracts shared by the order fulfillment pipeline.
//
// A Purchase is the aggregate root. ScrapedData (at most one) and Output rows
// (one per generated report) hang off it and are removed with it. TempCart is a
// side channel used to carry a URL and metadata through a checkout provider that
// truncates order metadata.
package fulfillment

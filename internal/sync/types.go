// Package sync replicates Ads API resources and analytics reports into a
// record stream, advancing per-account watermarks as it goes.
package sync

// Result contains the outcome of a sync run.
type Result struct {
	// Accounts is the number of accounts synced.
	Accounts int

	// DryRun indicates nothing was written or persisted.
	DryRun bool

	// JobsFailed is the number of report jobs that did not succeed.
	JobsFailed int

	// JobsSubmitted is the number of report jobs submitted.
	JobsSubmitted int

	// JobsTimedOut is the number of report jobs still running when polling gave up.
	JobsTimedOut int

	// OutOfOrder counts records that arrived newer than the first record of their pass.
	OutOfOrder int

	// Records is the number of records emitted per stream.
	Records map[string]int
}

// TotalRecords returns the number of records emitted across all streams.
func (r *Result) TotalRecords() int {
	total := 0
	for _, n := range r.Records {
		total += n
	}
	return total
}

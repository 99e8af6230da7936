package engine

// versionCounter numbers published snapshots. New publishes the all-default
// grid as version 1 and every later publish takes the next version. Updates
// that leave the grid untouched report the latest version instead.
//
// Only New and the Run loop advance the counter, so it is not locked.
// Readers see versions only through Snapshot.Seq and Update.Seq.
type versionCounter struct {
	last int64
}

// advance returns the version for the snapshot about to be published.
func (v *versionCounter) advance() int64 {
	v.last++
	return v.last
}

// latest returns the version of the most recently published snapshot.
func (v *versionCounter) latest() int64 {
	return v.last
}

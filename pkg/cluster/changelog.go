package cluster

import "fmt"

// ChangelogRecord is one line of the append-only change-log described by
// spec.md §3 "Change-log record": "<unixTs> <group> <storageId> <status>
// <arg>".
type ChangelogRecord struct {
	Ts     int64
	Group  string
	Storage string
	Status Status
	Arg    string
}

// String renders r in the on-disk text form.
func (r ChangelogRecord) String() string {
	return fmt.Sprintf("%d %s %s %s %s", r.Ts, r.Group, r.Storage, r.Status, r.Arg)
}

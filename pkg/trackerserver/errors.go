package trackerserver

import "github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"

// invalidArgErr and notFoundErr are local Kind-classified errors for
// malformed-body and no-such-group/storage conditions a handler detects
// from the raw wire body itself, before any cluster/selection call that
// would otherwise supply a properly classified sentinel.
type invalidArgErr struct{}

func (invalidArgErr) Error() string          { return "trackerserver: malformed request body" }
func (invalidArgErr) Kind() trackerproto.Kind { return trackerproto.KindInvalidArgument }

type notFoundErr struct{}

func (notFoundErr) Error() string          { return "trackerserver: not found" }
func (notFoundErr) Kind() trackerproto.Kind { return trackerproto.KindNotFound }

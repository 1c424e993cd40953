package types

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Resource identifies one watched resource kind, e.g. pods.v1 or
// kopfexamples.v1.zalando.org. Comparable; used as part of queue keys.
type Resource struct {
	Group   string
	Version string
	Plural  string
}

func (r Resource) String() string {
	if r.Group == "" {
		return fmt.Sprintf("%s.%s", r.Plural, r.Version)
	}
	return fmt.Sprintf("%s.%s.%s", r.Plural, r.Version, r.Group)
}

// ObjectUid is the cluster-unique identifier of one object of a resource kind.
type ObjectUid string

// ObjectRef is the compound key of one per-object queue/worker pair.
// At most one live worker and one live queue exist per ObjectRef.
type ObjectRef struct {
	Resource Resource
	Uid      ObjectUid
}

func (ref ObjectRef) String() string {
	return fmt.Sprintf("%s/%s", ref.Resource, ref.Uid)
}

// Event is one raw watch event. The body is passed to the handler untouched;
// the engine only reads the object uid to route the event.
type Event struct {
	Type   string         // ADDED, MODIFIED, DELETED, ...
	Object map[string]any // unstructured object body
}

// ObjectUid extracts the uid from the event body. Events without a uid are
// a contract violation of the source; the empty uid is used as-is.
func (ev *Event) ObjectUid() ObjectUid {
	meta := cast.ToStringMap(ev.Object["metadata"])
	return ObjectUid(cast.ToString(meta["uid"]))
}

// Default worker tunables. See the config package for process-level loading.
const (
	DefaultWorkersLimit      = 100
	DefaultIdleTimeout       = 5 * time.Second
	DefaultBatchWindow       = 100 * time.Millisecond
	DefaultExitTimeout       = 2 * time.Second
	DepletionPollingFraction = 100 // depletion polls every ExitTimeout/100
)

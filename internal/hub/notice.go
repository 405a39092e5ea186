package hub

import (
	"time"

	"github.com/nerrad567/poweredup/internal/lwp3"
)

// NoticeKind classifies a hub notification.
type NoticeKind uint8

// Notice kinds.
const (
	NoticeProperty NoticeKind = iota + 1
	NoticeAction
	NoticeAlert
	NoticeError
	NoticePortReady
	NoticeAttached
	NoticeDetached
)

var noticeKindNames = map[NoticeKind]string{
	NoticeProperty:  "property",
	NoticeAction:    "action",
	NoticeAlert:     "alert",
	NoticeError:     "error",
	NoticePortReady: "port_ready",
	NoticeAttached:  "attached",
	NoticeDetached:  "detached",
}

func (k NoticeKind) String() string {
	if s, ok := noticeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Notice is one item on the hub notification topic. Message holds the
// decoded frame for property, action, alert, error and attach notices; it
// is nil for NoticePortReady.
type Notice struct {
	Kind    NoticeKind
	Port    uint8
	Message lwp3.Message
	Time    time.Time
}

// MarshalText encodes the kind by name.
func (k NoticeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

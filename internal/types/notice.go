package types

// NoticeLevel classifies a user-visible notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a short message surfaced to the user (status line, toast, stderr).
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Notifier receives user-visible notices.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// DiscardNotices drops every notice.
var DiscardNotices Notifier = NotifierFunc(func(Notice) {})

// NoticeRecorder collects notices in memory. Useful for tests and for UIs
// that render notices after a command returns.
type NoticeRecorder struct {
	Notices []Notice
}

// Notify records n.
func (r *NoticeRecorder) Notify(n Notice) { r.Notices = append(r.Notices, n) }

// Last returns the most recent notice.
func (r *NoticeRecorder) Last() (Notice, bool) {
	if len(r.Notices) == 0 {
		return Notice{}, false
	}
	return r.Notices[len(r.Notices)-1], true
}

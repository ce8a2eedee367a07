package master

import "github.com/sirupsen/logrus"

// channelLogger builds the base *logrus.Entry every Channel, Association
// and Task attaches its own fields to, in the teacher's
// session-scoped-logger style generalized from a single boolean Trace
// flag to structured fields; the fields do not depend on DecodeLevel.
func channelLogger(log logrus.FieldLogger, channelName string) *logrus.Entry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("channel", channelName)
}

func taskFields(t *Task) logrus.Fields {
	return logrus.Fields{
		"task_id":   t.ID.String(),
		"task_kind": t.Kind.String(),
		"retries":   t.retries,
	}
}

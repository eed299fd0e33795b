// Package logging configures structured logging for flowmr's processes.
// Grounded on the pack's logrus usage (e.g. the dbspgraph master
// coordinator's *logrus.Entry field and TGIFAI-friday's go.mod), replacing
// the teacher's plain log.Printf calls.
package logging

import "github.com/sirupsen/logrus"

// New returns a component-scoped logger: every line carries a "component"
// field so grepping a concurrent-jobs log (spec.md 8 scenario 6) stays
// tractable.
func New(component string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	return log.WithField("component", component)
}

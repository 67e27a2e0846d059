package service

import (
	"strings"

	"github.com/noah-isme/attendance-insights-api/internal/models"
)

type sessionKey struct {
	date    string
	subject string
}

type presenceKey struct {
	student string
	session sessionKey
}

type studentIdentity struct {
	name string
	id   string
}

// key is the student id, or the name for rows that carry no id.
func (i studentIdentity) key() string {
	if i.id != "" {
		return i.id
	}
	return nameKeyPrefix + i.name
}

// nameKeyPrefix cannot occur in a normalized id, so name keys never collide with ids.
const nameKeyPrefix = "\x00name:"

// attendanceLedger is the deduplicated view of the merged table.
type attendanceLedger struct {
	sessions    map[sessionKey]struct{}
	dates       map[string]struct{}
	presence    map[presenceKey]struct{}
	studentKeys map[string]struct{}
	identities  []studentIdentity
}

// isPresent is deliberately loose: any status containing the keyword counts, e.g. "present (late)".
func isPresent(status, keyword string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(status)), keyword)
}

// resolve collapses duplicate rows into set memberships. Rows without a student id are keyed by
// name; rows with neither still define sessions and days but never an identity or a presence fact.
func (a *AttendanceAggregator) resolve(records []models.SessionRecord) *attendanceLedger {
	ledger := &attendanceLedger{
		sessions:    make(map[sessionKey]struct{}),
		dates:       make(map[string]struct{}),
		presence:    make(map[presenceKey]struct{}),
		studentKeys: make(map[string]struct{}),
	}
	seenIdentity := make(map[studentIdentity]struct{})

	for _, record := range records {
		session := sessionKey{date: record.Date.Format(sessionDateLayout), subject: record.Subject}
		ledger.sessions[session] = struct{}{}
		ledger.dates[session.date] = struct{}{}

		identity := studentIdentity{name: record.StudentName, id: record.StudentID}
		if identity.id == "" && identity.name == "" {
			continue
		}
		ledger.studentKeys[identity.key()] = struct{}{}
		if _, ok := seenIdentity[identity]; !ok {
			seenIdentity[identity] = struct{}{}
			ledger.identities = append(ledger.identities, identity)
		}

		if isPresent(record.Status, a.cfg.PresenceKeyword) {
			ledger.presence[presenceKey{student: identity.key(), session: session}] = struct{}{}
		}
	}
	return ledger
}

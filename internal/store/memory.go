package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/felixcuello/cp-server/internal/judge"
)

// UserProblemStatus is the per-user-per-problem solve record.
type UserProblemStatus struct {
	UserID    int64
	ProblemID int64
	Solved    bool
	Attempts  int
	UpdatedAt time.Time
}

// Memory is an in-process implementation of the judge stores. It backs the
// offline CLI and the package tests; the judging core sees the same
// interface the Postgres store implements.
type Memory struct {
	mu          sync.RWMutex
	problems    map[int64]judge.Problem
	languages   map[int64]judge.Language
	examples    map[int64][]judge.Example
	templates   map[harnessKey]judge.Template
	testers     map[harnessKey]judge.Tester
	submissions map[int64]judge.Submission
	userStatus  map[statusKey]UserProblemStatus

	// upsertLocks serializes UpsertUserProblemStatus per (user, problem)
	// key without contending unrelated keys.
	upsertLocks *xsync.MapOf[statusKey, *sync.Mutex]
}

type harnessKey struct {
	ProblemID  int64
	LanguageID int64
}

type statusKey struct {
	UserID    int64
	ProblemID int64
}

func NewMemory() *Memory {
	return &Memory{
		problems:    make(map[int64]judge.Problem),
		languages:   make(map[int64]judge.Language),
		examples:    make(map[int64][]judge.Example),
		templates:   make(map[harnessKey]judge.Template),
		testers:     make(map[harnessKey]judge.Tester),
		submissions: make(map[int64]judge.Submission),
		userStatus:  make(map[statusKey]UserProblemStatus),
		upsertLocks: xsync.NewMapOf[statusKey, *sync.Mutex](),
	}
}

// Seeding helpers. These replace whatever record shares the ID, so tests
// can overwrite fixtures freely.

func (m *Memory) AddProblem(p judge.Problem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problems[p.ID] = p
}

func (m *Memory) AddLanguage(l judge.Language) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.languages[l.ID] = l
}

func (m *Memory) AddExample(e judge.Example) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.examples[e.ProblemID] = append(m.examples[e.ProblemID], e)
}

func (m *Memory) AddSubmission(s judge.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[s.ID] = s
}

func (m *Memory) SetTemplate(t judge.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[harnessKey{t.ProblemID, t.LanguageID}] = t
}

func (m *Memory) SetTester(t judge.Tester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testers[harnessKey{t.ProblemID, t.LanguageID}] = t
}

// ProblemStore implementation.

func (m *Memory) GetProblem(_ context.Context, id int64) (judge.Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.problems[id]
	if !ok {
		return judge.Problem{}, fmt.Errorf("problem %d not found", id)
	}
	return p, nil
}

func (m *Memory) GetLanguage(_ context.Context, id int64) (judge.Language, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.languages[id]
	if !ok {
		return judge.Language{}, fmt.Errorf("language %d not found", id)
	}
	return l, nil
}

func (m *Memory) OrderedExamples(_ context.Context, problemID int64) ([]judge.Example, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	examples := make([]judge.Example, len(m.examples[problemID]))
	copy(examples, m.examples[problemID])
	sort.SliceStable(examples, func(i, j int) bool {
		return examples[i].SortOrder < examples[j].SortOrder
	})
	return examples, nil
}

func (m *Memory) TemplateFor(_ context.Context, problemID, languageID int64) (*judge.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[harnessKey{problemID, languageID}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) TesterFor(_ context.Context, problemID, languageID int64) (*judge.Tester, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.testers[harnessKey{problemID, languageID}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) UpdateStatistics(_ context.Context, problemID int64, total, accepted int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[problemID]
	if !ok {
		return fmt.Errorf("problem %d not found", problemID)
	}
	p.TotalSubmissions = total
	p.AcceptedSubmissions = accepted
	m.problems[problemID] = p
	return nil
}

// SubmissionStore implementation.

func (m *Memory) GetSubmission(_ context.Context, id int64) (judge.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return judge.Submission{}, fmt.Errorf("submission %d not found", id)
	}
	return s, nil
}

func (m *Memory) ClaimForJudging(_ context.Context, id int64, next judge.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return false, fmt.Errorf("submission %d not found", id)
	}
	if !s.Status.Pending() {
		return false, nil
	}
	s.Status = next
	s.UpdatedAt = time.Now()
	m.submissions[id] = s
	return true, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id int64, status judge.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return fmt.Errorf("submission %d not found", id)
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	m.submissions[id] = s
	return nil
}

func (m *Memory) UpdateTimeUsed(_ context.Context, id int64, seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return fmt.Errorf("submission %d not found", id)
	}
	s.TimeUsed = seconds
	s.UpdatedAt = time.Now()
	m.submissions[id] = s
	return nil
}

func (m *Memory) CountForProblem(_ context.Context, problemID int64) (total, accepted int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.submissions {
		if s.ProblemID != problemID {
			continue
		}
		total++
		if s.Status == judge.StatusAccepted {
			accepted++
		}
	}
	return total, accepted, nil
}

func (m *Memory) UpsertUserProblemStatus(_ context.Context, userID, problemID int64, accepted bool) error {
	key := statusKey{userID, problemID}
	lock, _ := m.upsertLocks.LoadOrStore(key, &sync.Mutex{})
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.userStatus[key]
	st.UserID = userID
	st.ProblemID = problemID
	st.Attempts++
	// Solved is monotonic: a later rejected submission never demotes it.
	st.Solved = st.Solved || accepted
	st.UpdatedAt = time.Now()
	m.userStatus[key] = st
	return nil
}

// GetUserProblemStatus reports the solve record for (user, problem), with
// ok false when the user has never submitted to the problem.
func (m *Memory) GetUserProblemStatus(userID, problemID int64) (UserProblemStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.userStatus[statusKey{userID, problemID}]
	return st, ok
}

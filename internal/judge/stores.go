package judge

import "context"

// ProblemStore is the data-access collaborator for problems, languages,
// examples and function-mode harnesses. The judging core calls it; it does
// not implement it.
type ProblemStore interface {
	GetProblem(ctx context.Context, id int64) (Problem, error)
	GetLanguage(ctx context.Context, id int64) (Language, error)

	// OrderedExamples returns a problem's examples in ascending sort
	// order, hidden cases included.
	OrderedExamples(ctx context.Context, problemID int64) ([]Example, error)

	// TemplateFor and TesterFor return nil (and no error) when the
	// problem has no harness registered for the language.
	TemplateFor(ctx context.Context, problemID, languageID int64) (*Template, error)
	TesterFor(ctx context.Context, problemID, languageID int64) (*Tester, error)

	UpdateStatistics(ctx context.Context, problemID int64, total, accepted int) error
}

// SubmissionStore is the data-access collaborator for submissions and the
// per-user-per-problem solve records.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, id int64) (Submission, error)

	// ClaimForJudging atomically moves a pending submission to next and
	// reports whether the claim won. A false return means another worker
	// already holds or finished this submission; the caller must not
	// judge it again.
	ClaimForJudging(ctx context.Context, id int64, next Status) (bool, error)

	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateTimeUsed(ctx context.Context, id int64, seconds float64) error

	CountForProblem(ctx context.Context, problemID int64) (total, accepted int, err error)

	// UpsertUserProblemStatus records solved/attempted for (user,
	// problem). It must serialize concurrent calls for the same key and
	// never regress an existing "solved" to "attempted".
	UpsertUserProblemStatus(ctx context.Context, userID, problemID int64, accepted bool) error
}

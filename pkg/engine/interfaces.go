package engine

import "context"

// Repository answers read-only questions about the local git repository.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ResolveRef returns the full commit id of ref. ok is false when the ref
	// does not exist.
	ResolveRef(ctx context.Context, ref string) (commit string, ok bool, err error)

	// TagsAt returns the tags pointing at commit.
	TagsAt(ctx context.Context, commit string) ([]string, error)
}

// TargetReader reads the deployed state of one platform app.
type TargetReader interface {
	// ReadTarget returns the current release, dynos and config of app.
	ReadTarget(ctx context.Context, app string) (TargetState, error)
}

// CIReader reads the combined CI status of a commit.
type CIReader interface {
	CombinedStatus(ctx context.Context, commit string) (CIStatus, error)
}

// Targets names the platform apps of a pipeline.
type Targets struct {
	Pipeline   string `json:"pipeline,omitempty"`
	Staging    string `json:"staging"`
	Production string `json:"production"`
}

// App returns the app for role.
func (t Targets) App(role TargetRole) string {
	if role == RoleProduction {
		return t.Production
	}
	return t.Staging
}

package platform

import "time"

// Ref identifies a resource by id and, where the API provides it, name.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// App is a platform application.
type App struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	GitURL string `json:"git_url"`
	WebURL string `json:"web_url"`
}

// Pipeline groups staging and production apps.
type Pipeline struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Coupling places an app in a pipeline stage.
type Coupling struct {
	ID       string `json:"id"`
	App      Ref    `json:"app"`
	Pipeline Ref    `json:"pipeline"`
	Stage    string `json:"stage"`
}

// Pipeline stages.
const (
	StageStaging    = "staging"
	StageProduction = "production"
)

// Dyno is one running process.
type Dyno struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	State   string `json:"state"`
	Size    string `json:"size"`
	Release struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	} `json:"release"`
}

// Formation is the scale of one process type.
type Formation struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size"`
}

// Release is one deployed release of an app.
type Release struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
	Slug        *Ref      `json:"slug"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Slug is a compiled build.
type Slug struct {
	ID     string `json:"id"`
	Commit string `json:"commit"`
}

// Feature is an app feature flag.
type Feature struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Promotion is a pipeline promotion.
type Promotion struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Pipeline Ref    `json:"pipeline"`
	Source   appRef `json:"source"`
}

// PromotionTarget is the result of a promotion for one app.
type PromotionTarget struct {
	ID           string `json:"id"`
	App          Ref    `json:"app"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

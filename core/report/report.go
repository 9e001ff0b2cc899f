package report

import (
	"context"
	"time"
)

// Artifact is a generated report file, read-only once built.
type Artifact struct {
	Name        string
	ContentType string
	Content     []byte
}

// Target identifies what a report is about and on whose behalf it is built.
type Target struct {
	CourseID    int64
	Title       string
	RequestedBy int64
	At          time.Time
}

type Builder interface {
	Build(ctx context.Context, target Target) ([]Artifact, error)
}

// Names returns the file names of artifacts.
func Names(artifacts []Artifact) []string {
	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		names = append(names, a.Name)
	}
	return names
}

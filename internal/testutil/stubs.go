package testutil

import (
	"context"
	"errors"
	"sync"

	"momento/internal/models"
	"momento/internal/moderation"
	"momento/internal/transcode"
)

// ClassifierStub returns a fixed verdict or error and counts calls.
type ClassifierStub struct {
	mu       sync.Mutex
	Verdict  models.Verdict
	Err      error
	Requests []moderation.Request
}

// NewSafeClassifier returns a stub that approves everything.
func NewSafeClassifier() *ClassifierStub {
	return &ClassifierStub{Verdict: models.Verdict{IsSafe: true, Confidence: 0.99}}
}

// NewUnsafeClassifier returns a stub that flags everything with violation.
func NewUnsafeClassifier(violation string) *ClassifierStub {
	return &ClassifierStub{Verdict: models.Verdict{IsSafe: false, ViolationType: violation, Confidence: 0.95, Reason: "stub verdict"}}
}

// NewFailingClassifier returns a stub that is always unavailable.
func NewFailingClassifier() *ClassifierStub {
	return &ClassifierStub{Err: errors.Join(moderation.ErrUnavailable, errors.New("stub outage"))}
}

func (s *ClassifierStub) Classify(_ context.Context, req moderation.Request) (models.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return models.Verdict{}, s.Err
	}
	return s.Verdict, nil
}

// Calls returns how many times Classify ran.
func (s *ClassifierStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// TranscoderStub records dispatched jobs without doing any work.
type TranscoderStub struct {
	mu   sync.Mutex
	Err  error
	Jobs []transcode.Job
}

func (s *TranscoderStub) Dispatch(_ context.Context, job transcode.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Jobs = append(s.Jobs, job)
	return nil
}

// Calls returns how many jobs were accepted.
func (s *TranscoderStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Jobs)
}

// LastJob returns the most recently accepted job.
func (s *TranscoderStub) LastJob() (transcode.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Jobs) == 0 {
		return transcode.Job{}, false
	}
	return s.Jobs[len(s.Jobs)-1], true
}

// CompletedReport builds a callback report that completes job with every target.
func CompletedReport(job transcode.Job) transcode.Report {
	report := transcode.Report{PostID: job.PostID, Status: transcode.StatusCompleted}
	for _, t := range job.Targets {
		report.Renditions = append(report.Renditions, transcode.RenditionReport{
			Quality:     t.Quality,
			BitrateKbps: t.BitrateKbps,
			Width:       t.Width,
			Height:      t.Height,
			StorageKey:  t.StorageKey,
		})
	}
	return report
}

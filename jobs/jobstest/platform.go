// Package jobstest provides an in-memory job platform for tests and mock mode.
package jobstest

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/jobs"
)

// Submission records one RunNow call.
type Submission struct {
	RunID      string
	JobID      string
	Parameters map[string]string
}

// Platform is a fake jobs.Platform. Runs report RUNNING until RunDuration has
// elapsed since submission and SUCCESS afterwards, unless a state was set explicitly.
type Platform struct {
	// RunDuration is how long a submitted run stays RUNNING. Zero keeps runs RUNNING forever.
	RunDuration time.Duration
	// Latency delays every call, honoring context cancellation.
	Latency time.Duration
	// RunIDs, when set, are handed out in order before falling back to RUN-n.
	RunIDs []string

	RunNowErr    error
	GetRunErr    error
	CancelRunErr error

	Now func() time.Time

	mu          sync.Mutex
	next        int
	runs        map[string]*fakeRun
	submissions []Submission
	getCalls    int
	cancelCalls int
}

type fakeRun struct {
	submitted time.Time
	override  *jobs.RunInfo
}

var _ jobs.Platform = (*Platform)(nil)

func New() *Platform {
	return &Platform{}
}

func (p *Platform) RunNow(ctx context.Context, jobID string, parameters map[string]string) (string, error) {
	if err := p.wait(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RunNowErr != nil {
		return "", p.RunNowErr
	}
	p.init()
	p.next++
	runID := fmt.Sprintf("RUN-%d", p.next)
	if p.next <= len(p.RunIDs) {
		runID = p.RunIDs[p.next-1]
	}
	p.runs[runID] = &fakeRun{submitted: p.now()}
	p.submissions = append(p.submissions, Submission{RunID: runID, JobID: jobID, Parameters: maps.Clone(parameters)})
	return runID, nil
}

func (p *Platform) GetRun(ctx context.Context, runID string) (jobs.RunInfo, error) {
	if err := p.wait(ctx); err != nil {
		return jobs.RunInfo{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.getCalls++
	if p.GetRunErr != nil {
		return jobs.RunInfo{}, p.GetRunErr
	}
	p.init()
	run, ok := p.runs[runID]
	if !ok {
		return jobs.RunInfo{}, fmt.Errorf("%w: run %s does not exist", agent.ErrInvalidHandle, runID)
	}
	return p.info(runID, run), nil
}

func (p *Platform) CancelRun(ctx context.Context, runID string) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelCalls++
	if p.CancelRunErr != nil {
		return p.CancelRunErr
	}
	p.init()
	run, ok := p.runs[runID]
	if !ok {
		return fmt.Errorf("%w: run %s does not exist", agent.ErrInvalidHandle, runID)
	}
	run.override = &jobs.RunInfo{
		RunID:          runID,
		LifeCycleState: "TERMINATED",
		ResultState:    "CANCELED",
		StateMessage:   "Run cancelled by user",
	}
	return nil
}

// SetState pins the raw platform state reported for a run, creating it if needed.
func (p *Platform) SetState(runID string, info jobs.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.init()
	run, ok := p.runs[runID]
	if !ok {
		run = &fakeRun{submitted: p.now()}
		p.runs[runID] = run
	}
	info.RunID = runID
	run.override = &info
}

func (p *Platform) Submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Submission, len(p.submissions))
	for i, submission := range p.submissions {
		out[i] = submission
		out[i].Parameters = maps.Clone(submission.Parameters)
	}
	return out
}

func (p *Platform) GetRunCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

func (p *Platform) CancelRunCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelCalls
}

func (p *Platform) info(runID string, run *fakeRun) jobs.RunInfo {
	if run.override != nil {
		info := *run.override
		info.Tasks = append([]jobs.TaskInfo(nil), run.override.Tasks...)
		return info
	}
	info := jobs.RunInfo{
		RunID:      runID,
		RunPageURL: "https://jobs.example.test/runs/" + runID,
	}
	if p.RunDuration > 0 && p.now().Sub(run.submitted) >= p.RunDuration {
		info.LifeCycleState = "TERMINATED"
		info.ResultState = "SUCCESS"
		info.Tasks = []jobs.TaskInfo{{TaskKey: "agent_task", LifeCycleState: "TERMINATED", ResultState: "SUCCESS"}}
		return info
	}
	info.LifeCycleState = "RUNNING"
	info.StateMessage = "In run"
	return info
}

func (p *Platform) wait(ctx context.Context) error {
	if p.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Platform) init() {
	if p.runs == nil {
		p.runs = map[string]*fakeRun{}
	}
}

func (p *Platform) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

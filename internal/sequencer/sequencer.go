// Package sequencer drives one generation run: it requests a title batch,
// then generates every item strictly in order. Runs can be paused between
// items and tolerate per-item failures.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"sync"
	"time"

	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/store"
)

var (
	ErrAlreadyRunning   = errors.New("a generation run is already in progress")
	ErrNothingRequested = errors.New("no posts or pages requested")
	ErrNoTitles         = errors.New("no titles returned")
)

var userMessages = map[error]string{
	ErrNothingRequested: "Please request at least one post or page.",
	ErrNoTitles:         "No titles returned by AI.",
}

// Message returns the text shown to users for err. Errors the sequencer does
// not own are shown as they are.
func Message(err error) string {
	for target, msg := range userMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// Client is the subset of the generator a run needs.
type Client interface {
	Titles(ctx context.Context, req generator.TitlesRequest) (*generator.TitleBatch, error)
	Item(ctx context.Context, req generator.ItemRequest) (*generator.ItemResult, error)
}

type State string

const (
	StateIdle       State = "idle"
	StateTitles     State = "fetching_titles"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskError      TaskStatus = "error"
)

// Options are the run parameters chosen by the caller.
type Options struct {
	Posts          int    `json:"posts"`
	Pages          int    `json:"pages"`
	Instructions   string `json:"instructions"`
	TextModel      string `json:"model"`
	ImageModel     string `json:"image_model"`
	GenerateImages bool   `json:"generate_images"`
	Categories     bool   `json:"categories"`
	Tags           bool   `json:"tags"`
}

func (o Options) Validate() error {
	if o.Posts <= 0 && o.Pages <= 0 {
		return ErrNothingRequested
	}
	return nil
}

type Task struct {
	Kind                    string     `json:"kind"`
	Title                   string     `json:"title"`
	Categories              []string   `json:"categories"`
	Tags                    []string   `json:"tags"`
	IllustrationDescription string     `json:"illustration_description,omitempty"`
	Status                  TaskStatus `json:"status"`
	Note                    string     `json:"note,omitempty"`
	PostID                  int64      `json:"post_id,omitempty"`
	AttachmentID            int64      `json:"attachment_id,omitempty"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
	IsError bool      `json:"is_error"`
}

type Progress struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// Snapshot is a copy of the run state safe to hand out.
type Snapshot struct {
	State      State      `json:"state"`
	Paused     bool       `json:"paused"`
	Progress   Progress   `json:"progress"`
	Tasks      []Task     `json:"tasks"`
	Logs       []LogEntry `json:"logs"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Sequencer struct {
	client Client
	logger *log.Logger

	mu         sync.Mutex
	running    bool
	state      State
	paused     bool
	resume     chan struct{}
	progress   Progress
	tasks      []Task
	logs       []LogEntry
	err        string
	startedAt  time.Time
	finishedAt time.Time
}

func New(client Client, logger *log.Logger) *Sequencer {
	if logger == nil {
		logger = log.Default()
	}
	return &Sequencer{client: client, logger: logger, state: StateIdle}
}

// Run executes a full generation run and blocks until it ends. Starting a run
// resets everything recorded by the previous one. Per-item failures are kept
// on the task; only a failed title request or an empty batch fails the run.
func (s *Sequencer) Run(ctx context.Context, opts Options) error {
	errc, err := s.Start(ctx, opts)
	if err != nil {
		return err
	}
	return <-errc
}

// Start puts the sequencer in its running state before returning and runs
// the rest in the background. The channel receives the run's outcome once.
// Pause and Resume are accepted as soon as Start returns.
func (s *Sequencer) Start(ctx context.Context, opts Options) (<-chan error, error) {
	if err := s.begin(opts); err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() { errc <- s.execute(ctx, opts) }()
	return errc, nil
}

func (s *Sequencer) begin(opts Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateIdle
	s.paused = false
	s.resume = nil
	s.progress = Progress{}
	s.tasks = nil
	s.logs = nil
	s.err = ""
	s.startedAt = time.Now()
	s.finishedAt = time.Time{}

	if err := opts.Validate(); err != nil {
		s.finishedAt = s.startedAt
		s.mu.Unlock()
		s.fail(err)
		return err
	}

	s.running = true
	s.state = StateTitles
	s.progress = Progress{Value: 3, Label: "Requesting titles…"}
	s.mu.Unlock()
	s.log("Requesting titles from AI…", false)
	return nil
}

func (s *Sequencer) execute(ctx context.Context, opts Options) error {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.paused = false
		s.finishedAt = time.Now()
		s.mu.Unlock()
	}()

	if err := s.run(ctx, opts); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.state = StateCompleted
	s.progress = Progress{Value: 100, Label: "Generation completed."}
	s.mu.Unlock()
	s.log("Generation completed.", false)
	return nil
}

func (s *Sequencer) run(ctx context.Context, opts Options) error {
	batch, err := s.client.Titles(ctx, generator.TitlesRequest{
		Posts:          opts.Posts,
		Pages:          opts.Pages,
		Instructions:   opts.Instructions,
		Model:          opts.TextModel,
		GenerateImages: opts.GenerateImages,
	})
	if err != nil {
		return err
	}

	tasks := buildTasks(batch, opts.GenerateImages)
	if len(tasks) == 0 {
		return ErrNoTitles
	}

	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()
	s.log("Titles ready. Generating content now…", false)
	s.setState(StateProcessing, Progress{Value: 8, Label: "Generating content…"})

	for i := range tasks {
		if err := s.waitWhilePaused(ctx); err != nil {
			return err
		}

		task := s.task(i)
		label := "Generating post"
		if task.Kind == store.TypePage {
			label = "Generating page"
		}
		s.log(fmt.Sprintf("%s: %s", label, task.Title), false)
		s.updateTask(i, func(t *Task) { t.Status = TaskInProgress })

		s.generate(ctx, i, task, opts)

		percent := 8 + int(math.Round(float64(i+1)/float64(len(tasks))*82))
		s.setProgress(Progress{Value: percent, Label: fmt.Sprintf("%s (%d/%d)", label, i+1, len(tasks))})
	}
	return nil
}

func (s *Sequencer) generate(ctx context.Context, i int, task Task, opts Options) {
	req := generator.ItemRequest{
		Title:         task.Title,
		PostType:      task.Kind,
		Instructions:  opts.Instructions,
		Model:         opts.TextModel,
		GenerateImage: opts.GenerateImages,
		ImageModel:    opts.ImageModel,
		Categories:    []string{},
		Tags:          []string{},
	}
	if task.Kind == store.TypePost {
		if opts.Categories {
			req.Categories = task.Categories
		}
		if opts.Tags {
			req.Tags = task.Tags
		}
		if opts.GenerateImages {
			req.IllustrationDescription = task.IllustrationDescription
		}
	}

	result, err := s.client.Item(ctx, req)
	if err != nil {
		s.log("Error: "+err.Error(), true)
		s.updateTask(i, func(t *Task) {
			t.Status = TaskError
			t.Note = err.Error()
		})
		return
	}

	title := result.Title
	if title == "" {
		title = task.Title
	}
	if result.AttachmentID != 0 {
		s.log(fmt.Sprintf("Featured image set for %s", title), false)
	}
	if result.ImageError != "" {
		s.log(fmt.Sprintf("Image error for %s: %s", title, result.ImageError), true)
	}
	s.updateTask(i, func(t *Task) {
		t.Status = TaskDone
		t.Note = ""
		t.PostID = result.PostID
		t.AttachmentID = result.AttachmentID
	})
}

// Pause asks the run to stop before its next item. The item in flight, if
// any, runs to completion. It reports whether the request was accepted.
func (s *Sequencer) Pause() bool {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return false
	}
	s.paused = true
	s.resume = make(chan struct{})
	s.progress.Label = "Pausing…"
	s.mu.Unlock()
	s.log("Pausing after the current item…", false)
	return true
}

func (s *Sequencer) Resume() bool {
	s.mu.Lock()
	if !s.running || !s.paused {
		s.mu.Unlock()
		return false
	}
	s.paused = false
	close(s.resume)
	s.resume = nil
	s.progress.Label = "Resuming…"
	s.mu.Unlock()
	s.log("Resuming…", false)
	return true
}

// waitWhilePaused blocks at an item boundary until Resume is called. A
// cancelled context ends the wait with its error.
func (s *Sequencer) waitWhilePaused(ctx context.Context) error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return ctx.Err()
	}
	ch := s.resume
	s.progress.Label = "Paused"
	s.mu.Unlock()
	s.log("Paused. Resume to continue.", false)

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Paused:    s.paused,
		Progress:  s.progress,
		Tasks:     make([]Task, len(s.tasks)),
		Logs:      make([]LogEntry, len(s.logs)),
		Error:     s.err,
		StartedAt: s.startedAt,
	}
	copy(snap.Tasks, s.tasks)
	copy(snap.Logs, s.logs)
	if !s.running && !s.finishedAt.IsZero() {
		finished := s.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

// Running reports whether a run is in progress.
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sequencer) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = Message(err)
	s.progress = Progress{Value: 100, Label: "Error"}
	s.mu.Unlock()
	s.log("Error: "+Message(err), true)
}

func (s *Sequencer) setState(state State, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.progress = p
}

func (s *Sequencer) setProgress(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
}

func (s *Sequencer) task(i int) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[i]
}

func (s *Sequencer) updateTask(i int, fn func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.tasks[i])
}

func (s *Sequencer) log(text string, isError bool) {
	s.mu.Lock()
	s.logs = append(s.logs, LogEntry{Time: time.Now(), Text: text, IsError: isError})
	s.mu.Unlock()
	if isError {
		s.logger.Warn("run", "message", text)
	} else {
		s.logger.Info("run", "message", text)
	}
}

// buildTasks flattens a title batch into posts first, then pages.
func buildTasks(batch *generator.TitleBatch, images bool) []Task {
	tasks := make([]Task, 0, len(batch.Posts)+len(batch.Pages))
	for _, p := range batch.Posts {
		t := Task{
			Kind:       store.TypePost,
			Title:      p.Title,
			Categories: nonNil(p.Categories),
			Tags:       nonNil(p.Tags),
			Status:     TaskPending,
		}
		if images {
			t.IllustrationDescription = p.IllustrationDescription
		}
		tasks = append(tasks, t)
	}
	for _, p := range batch.Pages {
		tasks = append(tasks, Task{
			Kind:       store.TypePage,
			Title:      p.Title,
			Categories: []string{},
			Tags:       []string{},
			Status:     TaskPending,
		})
	}
	return tasks
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

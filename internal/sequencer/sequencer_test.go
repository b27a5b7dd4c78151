package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vnmchuo/contentgen/internal/generator"
)

type mockClient struct {
	mu      sync.Mutex
	items   []generator.ItemRequest
	titles  int
	batch   *generator.TitleBatch
	err     error
	TitlesF func(req generator.TitlesRequest) (*generator.TitleBatch, error)
	ItemF   func(n int, req generator.ItemRequest) (*generator.ItemResult, error)
}

func (m *mockClient) Titles(ctx context.Context, req generator.TitlesRequest) (*generator.TitleBatch, error) {
	m.mu.Lock()
	m.titles++
	m.mu.Unlock()
	if m.TitlesF != nil {
		return m.TitlesF(req)
	}
	return m.batch, m.err
}

func (m *mockClient) Item(ctx context.Context, req generator.ItemRequest) (*generator.ItemResult, error) {
	m.mu.Lock()
	m.items = append(m.items, req)
	n := len(m.items)
	m.mu.Unlock()
	if m.ItemF != nil {
		return m.ItemF(n, req)
	}
	return &generator.ItemResult{PostID: int64(n), Title: req.Title, PostType: req.PostType}, nil
}

func (m *mockClient) ItemCalls() []generator.ItemRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generator.ItemRequest(nil), m.items...)
}

func quietLogger() *log.Logger {
	return log.New(log.NewTextHandler(io.Discard, nil))
}

func batchOf(posts int, pages ...string) *generator.TitleBatch {
	b := &generator.TitleBatch{Posts: []generator.PostTitle{}, Pages: []generator.PageTitle{}}
	for i := 0; i < posts; i++ {
		b.Posts = append(b.Posts, generator.PostTitle{
			Title:                   string(rune('A' + i)),
			Categories:              []string{"Cat"},
			Tags:                    []string{"tag"},
			IllustrationDescription: "picture",
		})
	}
	for _, p := range pages {
		b.Pages = append(b.Pages, generator.PageTitle{Title: p})
	}
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRun_ProcessesTasksInOrder(t *testing.T) {
	client := &mockClient{batch: batchOf(2, "About")}
	s := New(client, quietLogger())

	err := s.Run(context.Background(), Options{Posts: 2, Pages: 1, TextModel: "gpt-4o-mini", Categories: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	calls := client.ItemCalls()
	if len(calls) != 3 {
		t.Fatalf("Expected 3 item calls, got %d", len(calls))
	}
	if calls[0].Title != "A" || calls[1].Title != "B" || calls[2].Title != "About" {
		t.Errorf("Unexpected order: %+v", calls)
	}
	if calls[0].PostType != "post" || calls[2].PostType != "page" {
		t.Errorf("Unexpected kinds: %s, %s", calls[0].PostType, calls[2].PostType)
	}
	if len(calls[0].Categories) != 1 || len(calls[0].Tags) != 0 {
		t.Errorf("Expected categories only, got %v / %v", calls[0].Categories, calls[0].Tags)
	}
	if len(calls[2].Categories) != 0 {
		t.Errorf("Expected no categories for a page, got %v", calls[2].Categories)
	}
	if calls[0].IllustrationDescription != "" {
		t.Errorf("Expected no illustration without images, got %q", calls[0].IllustrationDescription)
	}

	snap := s.Snapshot()
	if snap.State != StateCompleted || snap.Progress.Value != 100 || snap.Progress.Label != "Generation completed." {
		t.Errorf("Unexpected final state %+v", snap)
	}
	for i, task := range snap.Tasks {
		if task.Status != TaskDone || task.PostID == 0 {
			t.Errorf("Task %d: unexpected %+v", i, task)
		}
	}
	if snap.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}
}

func TestRun_PauseBlocksNextItem(t *testing.T) {
	var s *Sequencer
	client := &mockClient{batch: batchOf(5)}
	client.ItemF = func(n int, req generator.ItemRequest) (*generator.ItemResult, error) {
		if n == 2 {
			s.Pause()
		}
		return &generator.ItemResult{PostID: int64(n), Title: req.Title}, nil
	}
	s = New(client, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), Options{Posts: 5}) }()

	waitFor(t, func() bool { return s.Snapshot().Progress.Label == "Paused" })
	time.Sleep(50 * time.Millisecond)
	if n := len(client.ItemCalls()); n != 2 {
		t.Fatalf("Expected 2 item calls while paused, got %d", n)
	}

	snap := s.Snapshot()
	if !snap.Paused || snap.State != StateProcessing {
		t.Errorf("Expected paused processing state, got %+v", snap)
	}
	if snap.Tasks[0].Status != TaskDone || snap.Tasks[1].Status != TaskDone || snap.Tasks[2].Status != TaskPending {
		t.Errorf("Unexpected task states %+v", snap.Tasks)
	}
	if s.Pause() {
		t.Error("Expected a second pause to be rejected")
	}

	if !s.Resume() {
		t.Fatal("Expected resume to be accepted")
	}
	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := len(client.ItemCalls()); n != 5 {
		t.Errorf("Expected 5 item calls, got %d", n)
	}
}

func TestRun_ContinuesAfterItemFailure(t *testing.T) {
	client := &mockClient{batch: batchOf(3)}
	client.ItemF = func(n int, req generator.ItemRequest) (*generator.ItemResult, error) {
		if n == 2 {
			return nil, errors.New("OpenAI API error (500): overloaded")
		}
		if n == 3 {
			return &generator.ItemResult{PostID: 3, Title: req.Title, ImageError: "Replicate API key is missing."}, nil
		}
		return &generator.ItemResult{PostID: int64(n), Title: req.Title, AttachmentID: 10}, nil
	}
	s := New(client, quietLogger())

	if err := s.Run(context.Background(), Options{Posts: 3, GenerateImages: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	snap := s.Snapshot()
	if snap.Tasks[1].Status != TaskError || snap.Tasks[1].Note != "OpenAI API error (500): overloaded" {
		t.Errorf("Expected failed task 2, got %+v", snap.Tasks[1])
	}
	if snap.Tasks[2].Status != TaskDone {
		t.Errorf("Expected task 3 done, got %+v", snap.Tasks[2])
	}
	if snap.State != StateCompleted {
		t.Errorf("Expected completed run, got %s", snap.State)
	}

	var errorsLogged int
	for _, l := range snap.Logs {
		if l.IsError {
			errorsLogged++
		}
	}
	if errorsLogged != 2 {
		t.Errorf("Expected 2 error log lines, got %d", errorsLogged)
	}
	if client.ItemCalls()[0].IllustrationDescription != "picture" {
		t.Error("Expected illustration to be forwarded when images are on")
	}
}

func TestRun_Progress(t *testing.T) {
	var seen []Progress
	var s *Sequencer
	client := &mockClient{batch: batchOf(3)}
	client.ItemF = func(n int, req generator.ItemRequest) (*generator.ItemResult, error) {
		seen = append(seen, s.Snapshot().Progress)
		return &generator.ItemResult{PostID: int64(n)}, nil
	}
	s = New(client, quietLogger())

	if err := s.Run(context.Background(), Options{Posts: 3}); err != nil {
		t.Fatal(err)
	}
	want := []Progress{
		{Value: 8, Label: "Generating content…"},
		{Value: 35, Label: "Generating post (1/3)"},
		{Value: 63, Label: "Generating post (2/3)"},
	}
	for i, p := range want {
		if seen[i] != p {
			t.Errorf("Progress before item %d: expected %+v, got %+v", i+1, p, seen[i])
		}
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("nothing requested", func(t *testing.T) {
		client := &mockClient{}
		s := New(client, quietLogger())
		err := s.Run(context.Background(), Options{})
		if !errors.Is(err, ErrNothingRequested) {
			t.Errorf("Expected ErrNothingRequested, got %v", err)
		}
		if client.titles != 0 {
			t.Error("Expected no network call")
		}
	})

	t.Run("no titles", func(t *testing.T) {
		client := &mockClient{batch: batchOf(0)}
		s := New(client, quietLogger())
		err := s.Run(context.Background(), Options{Posts: 2})
		if !errors.Is(err, ErrNoTitles) {
			t.Errorf("Expected ErrNoTitles, got %v", err)
		}
		snap := s.Snapshot()
		if snap.State != StateFailed || snap.Error != "No titles returned by AI." || snap.Progress.Label != "Error" {
			t.Errorf("Unexpected snapshot %+v", snap)
		}
	})

	t.Run("titles error aborts", func(t *testing.T) {
		client := &mockClient{err: errors.New("Unknown text model: foo")}
		s := New(client, quietLogger())
		if err := s.Run(context.Background(), Options{Posts: 1}); err == nil {
			t.Fatal("Expected an error")
		}
		if len(client.ItemCalls()) != 0 {
			t.Error("Expected no item calls")
		}
		if s.Snapshot().Error != "Unknown text model: foo" {
			t.Errorf("Unexpected error %q", s.Snapshot().Error)
		}
	})
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{TitlesF: func(req generator.TitlesRequest) (*generator.TitleBatch, error) {
		<-release
		return batchOf(1), nil
	}}
	s := New(client, quietLogger())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), Options{Posts: 1}) }()
	waitFor(t, s.Running)

	if err := s.Run(context.Background(), Options{Posts: 1}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// A finished run can be replaced and starts from a clean slate.
	client.TitlesF = nil
	client.batch = batchOf(0, "Contact")
	if err := s.Run(context.Background(), Options{Pages: 1}); err != nil {
		t.Fatal(err)
	}
	if tasks := s.Snapshot().Tasks; len(tasks) != 1 || tasks[0].Title != "Contact" {
		t.Errorf("Expected state from the new run only, got %+v", tasks)
	}
}

func TestRun_CancelWhilePaused(t *testing.T) {
	var s *Sequencer
	client := &mockClient{batch: batchOf(2)}
	client.ItemF = func(n int, req generator.ItemRequest) (*generator.ItemResult, error) {
		s.Pause()
		return &generator.ItemResult{PostID: int64(n)}, nil
	}
	s = New(client, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, Options{Posts: 2}) }()

	waitFor(t, func() bool { return s.Snapshot().Progress.Label == "Paused" })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(client.ItemCalls()) != 1 {
		t.Errorf("Expected 1 item call, got %d", len(client.ItemCalls()))
	}
}

func TestStart_RunningBeforeReturn(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{TitlesF: func(req generator.TitlesRequest) (*generator.TitleBatch, error) {
		<-release
		return batchOf(2), nil
	}}
	s := New(client, quietLogger())

	errc, err := s.Start(context.Background(), Options{Posts: 2})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Running() {
		t.Error("Expected the sequencer to be running when Start returns")
	}
	snap := s.Snapshot()
	if snap.State != StateTitles || snap.Progress.Value != 3 {
		t.Errorf("Expected fetching_titles at 3%%, got %s at %d", snap.State, snap.Progress.Value)
	}
	if !s.Pause() {
		t.Error("Expected pause right after Start to be accepted")
	}
	if _, err := s.Start(context.Background(), Options{Posts: 1}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	waitFor(t, func() bool { return s.Snapshot().Progress.Label == "Paused" })
	if n := len(client.ItemCalls()); n != 0 {
		t.Errorf("Expected no item calls while paused, got %d", n)
	}
	s.Resume()
	if err := <-errc; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := len(client.ItemCalls()); n != 2 {
		t.Errorf("Expected 2 item calls, got %d", n)
	}
}

func TestStart_InvalidOptions(t *testing.T) {
	s := New(&mockClient{}, quietLogger())
	if _, err := s.Start(context.Background(), Options{}); !errors.Is(err, ErrNothingRequested) {
		t.Fatalf("Expected ErrNothingRequested, got %v", err)
	}
	snap := s.Snapshot()
	if s.Running() || snap.State != StateFailed || snap.Error != "Please request at least one post or page." {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNothingRequested, "Please request at least one post or page."},
		{fmt.Errorf("run: %w", ErrNoTitles), "No titles returned by AI."},
		{errors.New("Unknown text model: foo"), "Unknown text model: foo"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
	if ErrNothingRequested.Error() != "no posts or pages requested" {
		t.Errorf("Unexpected sentinel text %q", ErrNothingRequested.Error())
	}
}

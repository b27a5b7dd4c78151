package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	posts     map[int64]*Post
	terms     map[int64]*Term
	postTerms map[int64]map[Taxonomy][]int64
	media     map[int64]*Media

	// FailCreatePost, when set, is returned by CreatePost.
	FailCreatePost error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:     make(map[int64]*Post),
		terms:     make(map[int64]*Term),
		postTerms: make(map[int64]map[Taxonomy][]int64),
		media:     make(map[int64]*Media),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreatePost(ctx context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreatePost != nil {
		return s.FailCreatePost
	}
	post.ID = s.id()
	post.CreatedAt = time.Now()
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindTerm(ctx context.Context, taxonomy Taxonomy, name string) (*Term, error) {
	return s.find(func(t *Term) bool { return t.Taxonomy == taxonomy && t.Name == name })
}

func (s *MemoryStore) FindTermBySlug(ctx context.Context, taxonomy Taxonomy, slug string) (*Term, error) {
	return s.find(func(t *Term) bool { return t.Taxonomy == taxonomy && t.Slug == slug })
}

func (s *MemoryStore) find(match func(*Term) bool) (*Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.terms {
		if match(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateTerm(ctx context.Context, term *Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.terms {
		if t.Taxonomy == term.Taxonomy && (t.Name == term.Name || t.Slug == term.Slug) {
			return ErrConflict
		}
	}
	term.ID = s.id()
	cp := *term
	s.terms[term.ID] = &cp
	return nil
}

func (s *MemoryStore) AddPostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return ErrNotFound
	}
	byTax, ok := s.postTerms[postID]
	if !ok {
		byTax = make(map[Taxonomy][]int64)
		s.postTerms[postID] = byTax
	}
	for _, id := range termIDs {
		if !slices.Contains(byTax[taxonomy], id) {
			byTax[taxonomy] = append(byTax[taxonomy], id)
		}
	}
	return nil
}

func (s *MemoryStore) RemovePostTerms(ctx context.Context, postID int64, taxonomy Taxonomy, termIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTax, ok := s.postTerms[postID]
	if !ok {
		return nil
	}
	byTax[taxonomy] = slices.DeleteFunc(byTax[taxonomy], func(id int64) bool {
		return slices.Contains(termIDs, id)
	})
	return nil
}

func (s *MemoryStore) PostTerms(ctx context.Context, postID int64, taxonomy Taxonomy) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Clone(s.postTerms[postID][taxonomy])
	if ids == nil {
		ids = []int64{}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemoryStore) AttachMedia(ctx context.Context, m *Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[m.PostID]; !ok {
		return ErrNotFound
	}
	m.ID = s.id()
	m.CreatedAt = time.Now()
	cp := *m
	s.media[m.ID] = &cp
	return nil
}

func (s *MemoryStore) SetThumbnail(ctx context.Context, postID, mediaID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.ThumbnailID = mediaID
	return nil
}

// Media returns the attachment with the given id.
func (s *MemoryStore) Media(id int64) (*Media, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

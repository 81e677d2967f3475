package service

import (
	"sort"
	"sync"

	"github.com/xxxsen/voicerag/internal/model"
)

// DocumentRegistry remembers which file names were fully ingested and which
// are being ingested right now. Names are the only identity; two different
// files uploaded under one name are treated as the same document.
type DocumentRegistry struct {
	mu       sync.Mutex
	done     map[string]model.Document
	inflight map[string]struct{}
}

func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		done:     make(map[string]model.Document),
		inflight: make(map[string]struct{}),
	}
}

// Begin claims name for ingestion. It returns false when the name is already
// processed or another ingestion of it is running.
func (r *DocumentRegistry) Begin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.done[name]; ok {
		return false
	}
	if _, ok := r.inflight[name]; ok {
		return false
	}
	r.inflight[name] = struct{}{}
	return true
}

func (r *DocumentRegistry) Complete(doc model.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, doc.Name)
	r.done[doc.Name] = doc
}

// Abort releases a claim without registering the name so it can be retried.
func (r *DocumentRegistry) Abort(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, name)
}

func (r *DocumentRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[name]
	return ok
}

func (r *DocumentRegistry) List() []model.Document {
	r.mu.Lock()
	out := make([]model.Document, 0, len(r.done))
	for _, doc := range r.done {
		out = append(out, doc)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ctime != out[j].Ctime {
			return out[i].Ctime > out[j].Ctime
		}
		return out[i].Name < out[j].Name
	})
	return out
}

package sink

import (
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Parameter is the latest payload stored under a name
type Parameter struct {
	Payload []byte
	Updated time.Time
	// Version counts the updates of the parameter, starting at 1
	Version uint64
}

// ParameterStore holds the latest payload of any number of named parameters.
// Readers (e.g. the monitor) and pipeline consumers may access it concurrently.
type ParameterStore struct {
	params *xsync.MapOf[string, Parameter]
}

// NewParameterStore creates an empty store
func NewParameterStore() *ParameterStore {
	return &ParameterStore{
		params: xsync.NewMapOf[string, Parameter](),
	}
}

// Set replaces the payload of the named parameter
func (s *ParameterStore) Set(name string, payload []byte) {
	now := time.Now()
	s.params.Compute(name, func(old Parameter, loaded bool) (Parameter, bool) {
		return Parameter{Payload: payload, Updated: now, Version: old.Version + 1}, false
	})
}

// Get returns the named parameter, ok is false if it was never set
func (s *ParameterStore) Get(name string) (Parameter, bool) {
	return s.params.Load(name)
}

// Delete removes the named parameter
func (s *ParameterStore) Delete(name string) {
	s.params.Delete(name)
}

// Names returns the names of all parameters in sorted order
func (s *ParameterStore) Names() []string {
	names := make([]string, 0, s.params.Size())
	s.params.Range(func(name string, _ Parameter) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Sink returns an ISink that stores every payload as the named parameter
func (s *ParameterStore) Sink(name string) ISink {
	return &parameterSink{store: s, name: name}
}

// parameterSink binds a ParameterStore to one parameter name
type parameterSink struct {
	store *ParameterStore
	name  string
}

func (p *parameterSink) SetLatestPayload(payload []byte) error {
	p.store.Set(p.name, payload)
	return nil
}

package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/dash/internal/domain"
)

// Binding — пара (направление, среда), для которой регистрируется коннектор.
type Binding struct {
	Kind   domain.StepKind
	Medium domain.Medium
}

// String возвращает "kind/medium".
func (b Binding) String() string {
	return string(b.Kind) + "/" + string(b.Medium)
}

// BindingOf возвращает пару шага.
func BindingOf(step *domain.Step) Binding {
	return Binding{Kind: step.Kind, Medium: step.Medium()}
}

// Registry — реестр фабрик коннекторов.
//
// Выбор коннектора — чистое отображение по направлению и среде шага,
// без какого-либо вывода. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[Binding]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Binding]Factory),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными коннекторами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(Binding{domain.StepKindRead, domain.MediumFile}, NewFileReader)
	r.Register(Binding{domain.StepKindWrite, domain.MediumFile}, NewFileWriter)
	r.Register(Binding{domain.StepKindRead, domain.MediumHTTP}, NewHTTPReader)
	r.Register(Binding{domain.StepKindWrite, domain.MediumHTTP}, NewHTTPWriter)
	r.Register(Binding{domain.StepKindRead, domain.MediumPostgres}, NewPostgresReader)
	r.Register(Binding{domain.StepKindWrite, domain.MediumPostgres}, NewPostgresWriter)
	r.Register(Binding{domain.StepKindRead, domain.MediumAMQP}, NewAMQPReader)
	r.Register(Binding{domain.StepKindWrite, domain.MediumAMQP}, NewAMQPWriter)
	r.Register(Binding{domain.StepKindRun, domain.MediumProcess}, NewProcess)

	return r
}

// Register регистрирует фабрику. Существующая фабрика перезаписывается.
func (r *Registry) Register(b Binding, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[b] = f
}

// Get возвращает фабрику для пары.
// Возвращает ErrUnsupported, если фабрика не найдена.
func (r *Registry) Get(b Binding) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[b]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, b)
	}
	return f, nil
}

// Build создаёт коннектор для шага запроса.
func (r *Registry) Build(req *Request) (Connector, error) {
	f, err := r.Get(BindingOf(req.Step))
	if err != nil {
		return nil, err
	}
	return f(req)
}

// Has проверяет, зарегистрирована ли пара.
func (r *Registry) Has(b Binding) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[b]
	return ok
}

// Bindings возвращает отсортированный список зарегистрированных пар.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.factories))
	for b := range r.factories {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Unregister удаляет фабрику из реестра.
func (r *Registry) Unregister(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, b)
}

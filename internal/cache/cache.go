// Package cache хранит промежуточные данные между шагами pipeline.
//
// Cache живёт столько же, сколько один run: записи не вытесняются,
// а после Close любое обращение считается ошибкой программы.
package cache

import (
	"sort"
	"sync"

	"github.com/shaiso/dash/internal/domain"
)

// Cache — потокобезопасное хранилище байтовых значений по строковому ключу.
//
// Все операции сериализуются одним мьютексом. Мьютекс удерживается
// только на время доступа к map, не на время I/O шагов.
// Значения копируются и при записи, и при чтении.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	closed  bool
}

// New создаёт пустой кэш.
func New() *Cache {
	return &Cache{
		entries: make(map[string][]byte),
	}
}

// Get возвращает копию значения по ключу.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeOpen()

	data, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return clone(data), true
}

// Put сохраняет копию значения по ключу.
// Существующее значение перезаписывается.
func (c *Cache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeOpen()

	c.entries[key] = clone(data)
}

// PutAll сохраняет одно значение под несколькими ключами за одну
// блокировку: читатель видит либо все ключи обновлёнными, либо ни одного.
func (c *Cache) PutAll(data []byte, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mustBeOpen()

	// записи не изменяются на месте, поэтому копию можно разделить между ключами
	value := clone(data)
	for _, key := range keys {
		c.entries[key] = value
	}
}

// Has проверяет наличие ключа.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeOpen()

	_, ok := c.entries[key]
	return ok
}

// Keys возвращает отсортированный список ключей.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeOpen()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len возвращает количество записей.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.mustBeOpen()
	return len(c.entries)
}

// Close уничтожает содержимое кэша. Повторный Close безопасен.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.closed = true
}

// Scope создаёт handle шага, читающий input и пишущий output.
// Пустой output означает, что шаг ничего не публикует.
func (c *Cache) Scope(input, output string) *Scope {
	return &Scope{
		cache:  c,
		input:  input,
		output: output,
	}
}

func (c *Cache) mustBeOpen() {
	if c.closed {
		panic("cache: use after close")
	}
}

func clone(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Scope — ограниченный доступ шага к кэшу.
//
// Шаг читает только свой input и пишет только свой output.
// Запись дублируется под domain.CurrentKey, чтобы следующий шаг
// без явного input получил последнее значение.
type Scope struct {
	cache  *Cache
	input  string
	output string
}

// InputKey возвращает ключ, который читает шаг.
func (s *Scope) InputKey() string {
	return s.input
}

// OutputKey возвращает ключ, под которым шаг публикует результат.
func (s *Scope) OutputKey() string {
	return s.output
}

// Input возвращает значение input-ключа.
func (s *Scope) Input() ([]byte, bool) {
	return s.cache.Get(s.input)
}

// Output сохраняет результат шага.
func (s *Scope) Output(data []byte) {
	if s.output == "" {
		return
	}
	if s.output == domain.CurrentKey {
		s.cache.Put(s.output, data)
		return
	}
	s.cache.PutAll(data, s.output, domain.CurrentKey)
}

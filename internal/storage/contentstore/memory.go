package contentstore

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Memory — хранилище артефактов в памяти. Используется в тестах.
type Memory struct {
	mu     sync.RWMutex
	files  map[string]memFile
	staged int
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile)}
}

// Stage копирует данные; под итоговым именем они появятся после Commit.
func (m *Memory) Stage(name string, data []byte) (Staged, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.staged++
	m.mu.Unlock()

	return &memStaged{store: m, name: name, data: buf, checksum: checksum(buf)}, nil
}

// Put записывает артефакт целиком.
func (m *Memory) Put(name string, data []byte) error {
	return put(m, name, data)
}

// Exists проверяет наличие зафиксированного артефакта.
func (m *Memory) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok, nil
}

// Open возвращает reader поверх копии содержимого.
func (m *Memory) Open(name string) (io.ReadSeekCloser, Info, error) {
	if err := ValidateName(name); err != nil {
		return nil, Info{}, err
	}
	m.mu.RLock()
	f, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nopCloser{bytes.NewReader(f.data)}, Info{Name: name, Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

// Remove удаляет артефакт.
func (m *Memory) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.files, name)
	m.mu.Unlock()
	return nil
}

// Names возвращает отсортированный список зафиксированных артефактов.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes возвращает содержимое артефакта (nil, false — если его нет).
func (m *Memory) Bytes(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return f.data, true
}

// PendingStaged — количество подготовленных, но не завершённых артефактов.
func (m *Memory) PendingStaged() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staged
}

type memStaged struct {
	store    *Memory
	name     string
	data     []byte
	checksum string
	finished bool
}

func (st *memStaged) Name() string     { return st.name }
func (st *memStaged) Size() int64      { return int64(len(st.data)) }
func (st *memStaged) Checksum() string { return st.checksum }

func (st *memStaged) Commit() error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()
	if st.finished {
		return ErrAlreadyFinished
	}
	st.finished = true
	st.store.staged--
	st.store.files[st.name] = memFile{data: st.data, modTime: time.Now().UTC()}
	return nil
}

func (st *memStaged) Discard() error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()
	if st.finished {
		return nil
	}
	st.finished = true
	st.store.staged--
	return nil
}

// nopCloser добавляет пустой Close к io.ReadSeeker.
type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }

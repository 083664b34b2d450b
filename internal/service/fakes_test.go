package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
	"github.com/AydinTheFirst/ri-transfer/internal/events"
	"github.com/AydinTheFirst/ri-transfer/internal/repository"
	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

var errInjected = errors.New("внедрённая ошибка")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memState — содержимое in-memory БД.
type memState struct {
	folders map[string]*model.Folder
	files   []*model.File
}

func (s *memState) clone() *memState {
	c := &memState{folders: make(map[string]*model.Folder, len(s.folders))}
	for id, f := range s.folders {
		cp := *f
		c.folders[id] = &cp
	}
	for _, f := range s.files {
		cp := *f
		c.files = append(c.files, &cp)
	}
	return c
}

// memDB — in-memory замена PostgreSQL с транзакциями через копию состояния.
type memDB struct {
	mu    sync.Mutex
	state *memState

	// Ошибки для проверки отката
	failFolderCreate bool
	failFileCreateAt int // индекс вызова files.Create (с 1), 0 — без ошибки
	failSeal         bool
	commitErr        error

	txCount         int
	folderGetCalls  int
	fileCreateCalls int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{folders: make(map[string]*model.Folder)}}
}

// WithRepositories реализует Transactor.
func (db *memDB) WithRepositories(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.txCount++
	tx := db.state.clone()
	repos := &repository.Repositories{
		Folders: &memFolderRepo{db: db, st: tx},
		Files:   &memFileRepo{db: db, st: tx},
	}
	if err := fn(repos); err != nil {
		return err
	}
	if db.commitErr != nil {
		return db.commitErr
	}
	db.state = tx
	return nil
}

// Репозитории вне транзакции работают с зафиксированным состоянием под mu.
func (db *memDB) folderRepo() repository.FolderRepository { return &memFolderRepo{db: db} }
func (db *memDB) fileRepo() repository.FileRepository     { return &memFileRepo{db: db} }

func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

// addFolder добавляет запечатанную папку напрямую.
func (db *memDB) addFolder(f *model.Folder, files ...*model.File) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *f
	if cp.SealedAt == nil {
		sealed := cp.CreatedAt
		cp.SealedAt = &sealed
	}
	cp.FileCount = len(files)
	cp.Files = nil
	db.state.folders[cp.ID] = &cp
	db.state.files = append(db.state.files, files...)
}

type memFolderRepo struct {
	db *memDB
	st *memState // nil — вне транзакции
}

func (r *memFolderRepo) with(fn func(st *memState) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.state)
}

func (r *memFolderRepo) Create(_ context.Context, f *model.Folder) error {
	if r.db.failFolderCreate {
		return errInjected
	}
	return r.with(func(st *memState) error {
		if _, ok := st.folders[f.ID]; ok {
			return repository.ErrConflict
		}
		cp := *f
		cp.Files = nil
		st.folders[f.ID] = &cp
		return nil
	})
}

func (r *memFolderRepo) Seal(_ context.Context, id string, fileCount int, sealedAt time.Time) error {
	if r.db.failSeal {
		return errInjected
	}
	return r.with(func(st *memState) error {
		f, ok := st.folders[id]
		if !ok {
			return repository.ErrNotFound
		}
		if f.SealedAt != nil {
			return repository.ErrConflict
		}
		f.FileCount = fileCount
		f.SealedAt = &sealedAt
		return nil
	})
}

func (r *memFolderRepo) GetByID(_ context.Context, id string) (*model.Folder, error) {
	var out *model.Folder
	err := r.with(func(st *memState) error {
		r.db.folderGetCalls++
		f, ok := st.folders[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *f
		out = &cp
		return nil
	})
	return out, err
}

func (r *memFolderRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*model.Folder, error) {
	var out []*model.Folder
	err := r.with(func(st *memState) error {
		for _, f := range st.folders {
			if !now.Before(f.ExpiresAt) {
				cp := *f
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *memFolderRepo) Delete(_ context.Context, id string) error {
	return r.with(func(st *memState) error {
		if _, ok := st.folders[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.folders, id)
		kept := st.files[:0]
		for _, f := range st.files {
			if f.FolderID != id {
				kept = append(kept, f)
			}
		}
		st.files = kept
		return nil
	})
}

type memFileRepo struct {
	db *memDB
	st *memState
}

func (r *memFileRepo) with(fn func(st *memState) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.state)
}

func (r *memFileRepo) Create(_ context.Context, f *model.File) error {
	r.db.fileCreateCalls++
	if r.db.failFileCreateAt > 0 && r.db.fileCreateCalls == r.db.failFileCreateAt {
		return errInjected
	}
	return r.with(func(st *memState) error {
		if _, ok := st.folders[f.FolderID]; !ok {
			return fmt.Errorf("нарушение внешнего ключа: папка %s", f.FolderID)
		}
		for _, existing := range st.files {
			if existing.Name == f.Name {
				return repository.ErrConflict
			}
		}
		cp := *f
		st.files = append(st.files, &cp)
		return nil
	})
}

func (r *memFileRepo) ListByFolder(_ context.Context, folderID string) ([]*model.File, error) {
	out := make([]*model.File, 0)
	err := r.with(func(st *memState) error {
		for _, f := range st.files {
			if f.FolderID == folderID {
				cp := *f
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, err
}

func (r *memFileRepo) ListAll(_ context.Context) ([]*model.File, error) {
	var out []*model.File
	err := r.with(func(st *memState) error {
		for _, f := range st.files {
			cp := *f
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

// failingStore — хранилище с ошибками на заданных вызовах Stage/Commit (с 1).
type failingStore struct {
	*contentstore.Memory
	failStageAt  int
	failCommitAt int

	stages  int
	commits int
}

func (s *failingStore) Stage(name string, data []byte) (contentstore.Staged, error) {
	s.stages++
	if s.stages == s.failStageAt {
		return nil, errInjected
	}
	st, err := s.Memory.Stage(name, data)
	if err != nil {
		return nil, err
	}
	return &failingStaged{Staged: st, store: s}, nil
}

type failingStaged struct {
	contentstore.Staged
	store *failingStore
}

func (st *failingStaged) Commit() error {
	st.store.commits++
	if st.store.commits == st.store.failCommitAt {
		return errInjected
	}
	return st.Staged.Commit()
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.FolderCreated
	err    error
}

func (p *recordingPublisher) PublishFolderCreated(_ context.Context, ev events.FolderCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

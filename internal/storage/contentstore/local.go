package contentstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	// stagingDirName — поддиректория временных файлов внутри директории контента.
	stagingDirName = ".staging"
	// stagingPattern — шаблон имени временного файла. Не зависит от итогового
	// имени: оно может занимать все 255 байт, допустимые для имени файла.
	stagingPattern = "stage-*.tmp"
)

// Local — хранилище артефактов в директории на локальном диске.
type Local struct {
	// dir — корневая директория контента (RT_CONTENT_DIR)
	dir string
	// stagingDir — директория временных файлов (на том же разделе, что и dir)
	stagingDir string
}

// NewLocal создаёт хранилище. Создаёт директорию контента,
// если она не существует.
func NewLocal(dir string) (*Local, error) {
	s := &Local{
		dir:        dir,
		stagingDir: filepath.Join(dir, stagingDirName),
	}
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureDirs создаёт директорию контента и директорию временных файлов.
// Идемпотентна.
func (s *Local) ensureDirs() error {
	if err := os.MkdirAll(s.stagingDir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию контента %s: %w", s.dir, err)
	}
	return nil
}

// Dir возвращает путь к директории контента.
func (s *Local) Dir() string {
	return s.dir
}

// Stage записывает данные во временный файл с подсчётом SHA-256.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → (Commit) atomic rename.
// При ошибке temp файл удаляется.
func (s *Local) Stage(name string, data []byte) (Staged, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	// Директорию могли удалить после старта
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(s.stagingDir, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	hasher := sha256.New()
	n, err := io.MultiWriter(f, hasher).Write(data)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных %s: %w", name, err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла %s: %w", name, err)
	}

	return &localStaged{
		name:      name,
		tmpPath:   tmpPath,
		finalPath: filepath.Join(s.dir, name),
		size:      int64(n),
		checksum:  hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Put записывает артефакт целиком.
func (s *Local) Put(name string, data []byte) error {
	return put(s, name, data)
}

// Exists проверяет наличие артефакта на диске.
func (s *Local) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки артефакта %s: %w", name, err)
	}
	return info.Mode().IsRegular(), nil
}

// Open открывает артефакт для чтения.
func (s *Local) Open(name string) (io.ReadSeekCloser, Info, error) {
	if err := ValidateName(name); err != nil {
		return nil, Info{}, err
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, Info{}, fmt.Errorf("ошибка открытия артефакта %s: %w", name, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Info{}, fmt.Errorf("ошибка получения информации об артефакте %s: %w", name, err)
	}

	return f, Info{Name: name, Size: stat.Size(), ModTime: stat.ModTime()}, nil
}

// Remove удаляет артефакт с диска.
// Возвращает nil, если артефакт уже не существует.
func (s *Local) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления артефакта %s: %w", name, err)
	}
	return nil
}

// CleanupStaging удаляет временные файлы, оставшиеся после
// аварийно прерванных загрузок. Вызывается при старте, до приёма запросов.
// Возвращает количество удалённых файлов.
func (s *Local) CleanupStaging() (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("ошибка чтения %s: %w", s.stagingDir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.stagingDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("ошибка удаления %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// CheckReady проверяет, что директория контента доступна на запись.
// Реализует интерфейс handlers.ReadinessChecker.
func (s *Local) CheckReady() (status, message string) {
	if err := s.ensureDirs(); err != nil {
		return "fail", err.Error()
	}
	f, err := os.CreateTemp(s.stagingDir, "ready.*.tmp")
	if err != nil {
		return "fail", fmt.Sprintf("директория контента недоступна на запись: %v", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return "ok", "директория доступна на запись"
}

// localStaged — временный файл, ожидающий фиксации.
type localStaged struct {
	name      string
	tmpPath   string
	finalPath string
	size      int64
	checksum  string

	mu       sync.Mutex
	finished bool
}

func (st *localStaged) Name() string     { return st.name }
func (st *localStaged) Size() int64      { return st.size }
func (st *localStaged) Checksum() string { return st.checksum }

// Commit атомарно переименовывает временный файл в итоговый.
func (st *localStaged) Commit() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return ErrAlreadyFinished
	}
	if err := os.Rename(st.tmpPath, st.finalPath); err != nil {
		return fmt.Errorf("ошибка атомарного переименования %s: %w", st.name, err)
	}
	st.finished = true
	return nil
}

// Discard удаляет временный файл, если он ещё не зафиксирован.
func (st *localStaged) Discard() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return nil
	}
	st.finished = true
	if err := os.Remove(st.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления временного файла %s: %w", st.name, err)
	}
	return nil
}

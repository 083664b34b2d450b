// Пакет contentstore — хранилище артефактов загруженных файлов.
// Директория контента общая для всех запросов; имена артефактов
// уникальны за счёт префикса с идентификатором папки.
//
// Запись двухфазная: Stage пишет данные во временный файл
// (не виден под итоговым именем), Commit атомарно переименовывает его.
package contentstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Ошибки хранилища.
var (
	// ErrNotFound — артефакт с таким именем отсутствует.
	ErrNotFound = errors.New("артефакт не найден")
	// ErrInvalidName — имя недопустимо для хранения (пустое, с разделителями пути и т.п.).
	ErrInvalidName = errors.New("недопустимое имя артефакта")
	// ErrAlreadyFinished — подготовленный артефакт уже зафиксирован или отброшен.
	ErrAlreadyFinished = errors.New("артефакт уже зафиксирован или отброшен")
)

// Store — доступ к директории контента.
type Store interface {
	// Stage записывает данные во временный артефакт. Под именем name
	// данные становятся видны только после Staged.Commit.
	Stage(name string, data []byte) (Staged, error)
	// Put записывает артефакт целиком (Stage + Commit).
	Put(name string, data []byte) error
	// Exists проверяет наличие зафиксированного артефакта.
	Exists(name string) (bool, error)
	// Open открывает артефакт для чтения. Вызывающий код обязан закрыть reader.
	Open(name string) (io.ReadSeekCloser, Info, error)
	// Remove удаляет артефакт. Отсутствующий артефакт — не ошибка.
	Remove(name string) error
}

// Staged — подготовленный, но ещё не зафиксированный артефакт.
type Staged interface {
	// Name — итоговое имя артефакта.
	Name() string
	// Size — количество записанных байт.
	Size() int64
	// Checksum — SHA-256 содержимого (hex).
	Checksum() string
	// Commit делает артефакт видимым под итоговым именем.
	Commit() error
	// Discard удаляет временные данные. После Commit — no-op.
	Discard() error
}

// Info — сведения об артефакте.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ValidateName проверяет, что имя пригодно как имя файла в плоской директории.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: пустое имя", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q начинается с точки", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q содержит разделитель пути", ErrInvalidName, name)
	case len(name) > 255:
		return fmt.Errorf("%w: длина %d превышает 255 байт", ErrInvalidName, len(name))
	}
	return nil
}

// checksum вычисляет SHA-256 содержимого.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// put — общая реализация Put через двухфазную запись.
func put(s Store, name string, data []byte) error {
	staged, err := s.Stage(name, data)
	if err != nil {
		return err
	}
	if err := staged.Commit(); err != nil {
		_ = staged.Discard()
		return err
	}
	return nil
}

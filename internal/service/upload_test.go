package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

var fixedNow = time.Date(2026, 5, 4, 12, 30, 15, 123456789, time.UTC)

func newTestUploadService(db *memDB, store contentstore.Store, pub *recordingPublisher) *UploadService {
	var s *UploadService
	if pub != nil {
		s = NewUploadService(db, store, pub, 7*24*time.Hour, 10, testLogger())
	} else {
		s = NewUploadService(db, store, nil, 7*24*time.Hour, 10, testLogger())
	}
	s.now = func() time.Time { return fixedNow }
	return s
}

func part(name, contentType string, data []byte) FilePart {
	return FilePart{Filename: name, ContentType: contentType, Size: int64(len(data)), Data: data}
}

func TestUpload_CreatesFolderAndFiles(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	parts := []FilePart{
		part("first.txt", "text/plain", []byte("first")),
		part("photo 1.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff, 0x00}),
		part("empty.bin", "application/octet-stream", []byte{}),
	}

	folder, err := s.Upload(context.Background(), parts)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Ровно одна папка и N файлов
	st := db.snapshot()
	if len(st.folders) != 1 {
		t.Fatalf("папок в БД: %d, ожидалась 1", len(st.folders))
	}
	if len(st.files) != len(parts) {
		t.Fatalf("файлов в БД: %d, ожидалось %d", len(st.files), len(parts))
	}
	stored := st.folders[folder.ID]
	if stored == nil || stored.SealedAt == nil || stored.FileCount != len(parts) {
		t.Fatalf("папка не запечатана: %+v", stored)
	}

	// Срок жизни ровно 7 дней
	if got := folder.ExpiresAt.Sub(folder.CreatedAt); got != 604800*time.Second {
		t.Errorf("expiresAt - createdAt = %v, ожидалось 604800s", got)
	}
	if !folder.CreatedAt.Equal(fixedNow.Truncate(time.Microsecond)) {
		t.Errorf("CreatedAt = %v", folder.CreatedAt)
	}

	if len(folder.Files) != len(parts) {
		t.Fatalf("в ответе %d файлов", len(folder.Files))
	}
	for i, f := range folder.Files {
		p := parts[i]
		if f.Position != i {
			t.Errorf("файл %d: position = %d", i, f.Position)
		}
		if f.FolderID != folder.ID {
			t.Errorf("файл %d: folderId = %s", i, f.FolderID)
		}
		if f.Name != StoredName(folder.ID, p.Filename) {
			t.Errorf("файл %d: name = %q", i, f.Name)
		}
		if f.OriginalName != p.Filename || f.Type != p.ContentType {
			t.Errorf("файл %d: originalName = %q, type = %q", i, f.OriginalName, f.Type)
		}

		// Артефакт байт-в-байт совпадает с содержимым
		data, ok := store.Bytes(f.Name)
		if !ok {
			t.Fatalf("артефакт %s отсутствует", f.Name)
		}
		if int64(len(data)) != f.Size || !bytes.Equal(data, p.Data) {
			t.Errorf("артефакт %s не совпадает с загруженным содержимым", f.Name)
		}
		sum := sha256.Sum256(p.Data)
		if f.Checksum != hex.EncodeToString(sum[:]) {
			t.Errorf("файл %d: checksum = %s", i, f.Checksum)
		}
	}

	if n := len(store.Names()); n != len(parts) {
		t.Errorf("артефактов: %d, ожидалось %d", n, len(parts))
	}
	if store.PendingStaged() != 0 {
		t.Errorf("остались неподтверждённые артефакты: %d", store.PendingStaged())
	}
}

func TestUpload_StoredNameReportFinal(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	folder, err := s.Upload(context.Background(), []FilePart{
		part("report final.pdf", "application/pdf", []byte("0123456789")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	f := folder.Files[0]
	if f.Name != folder.ID+"_report_final.pdf" {
		t.Errorf("name = %q, ожидалось %q", f.Name, folder.ID+"_report_final.pdf")
	}
	if f.Size != 10 {
		t.Errorf("size = %d, ожидалось 10", f.Size)
	}
	if exists, _ := store.Exists(folder.ID + "_report_final.pdf"); !exists {
		t.Error("артефакт не создан")
	}
}

func TestUpload_NoFiles(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	for _, parts := range [][]FilePart{nil, {}} {
		_, err := s.Upload(context.Background(), parts)
		if !errors.Is(err, ErrNoFilesProvided) {
			t.Fatalf("ожидалась ErrNoFilesProvided, получено %v", err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Error("ErrNoFilesProvided должна быть ошибкой валидации")
		}
	}

	// Никаких побочных эффектов
	if db.txCount != 0 {
		t.Errorf("открыто транзакций: %d", db.txCount)
	}
	if st := db.snapshot(); len(st.folders) != 0 || len(st.files) != 0 {
		t.Error("в БД появились записи")
	}
	if len(store.Names()) != 0 || store.PendingStaged() != 0 {
		t.Error("в хранилище появились артефакты")
	}
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name  string
		parts []FilePart
		want  error
	}{
		{
			name:  "слишком много файлов",
			parts: make([]FilePart, 11),
			want:  ErrTooManyFiles,
		},
		{
			name:  "несовпадение заявленного размера",
			parts: []FilePart{{Filename: "a.txt", Size: 5, Data: []byte("abc")}},
			want:  ErrValidation,
		},
		{
			name:  "пустое имя файла",
			parts: []FilePart{part("", "text/plain", []byte("abc"))},
			want:  ErrValidation,
		},
		{
			name:  "имя длиннее 1024 символов",
			parts: []FilePart{part(strings.Repeat("я", 1025)+".txt", "text/plain", []byte("abc"))},
			want:  ErrValidation,
		},
		{
			name:  "некорректный UTF-8 в имени",
			parts: []FilePart{part("bad\xff\xfe.txt", "text/plain", []byte("abc"))},
			want:  ErrValidation,
		},
		{
			name:  "нулевой байт в имени",
			parts: []FilePart{part("a\x00.txt", "text/plain", []byte("abc"))},
			want:  ErrValidation,
		},
		{
			name:  "слишком длинный MIME-тип",
			parts: []FilePart{part("a.txt", "text/"+strings.Repeat("x", 300), []byte("abc"))},
			want:  ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemDB()
			store := contentstore.NewMemory()
			s := newTestUploadService(db, store, nil)

			_, err := s.Upload(context.Background(), tt.parts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ожидалась %v, получено %v", tt.want, err)
			}
			if db.txCount != 0 || len(store.Names()) != 0 {
				t.Error("валидация не должна иметь побочных эффектов")
			}
		})
	}
}

// TestUpload_CollidingNames — a#1.txt и a_1.txt санитизируются одинаково;
// каждый файл получает собственный артефакт.
// TestUpload_NameAtColumnLimit проверяет, что имя ровно на пределе
// колонки original_name принимается.
func TestUpload_NameAtColumnLimit(t *testing.T) {
	s := newTestUploadService(newMemDB(), contentstore.NewMemory(), nil)

	name := strings.Repeat("я", maxOriginalNameLen-4) + ".txt"
	folder, err := s.Upload(context.Background(), []FilePart{part(name, "text/plain", []byte("abc"))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if folder.Files[0].OriginalName != name {
		t.Error("исходное имя изменено")
	}
}

func TestUpload_CollidingNames(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	folder, err := s.Upload(context.Background(), []FilePart{
		part("a#1.txt", "text/plain", []byte("hash")),
		part("a_1.txt", "text/plain", []byte("underscore")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	first, second := folder.Files[0], folder.Files[1]
	if first.Name != folder.ID+"_a_1.txt" {
		t.Errorf("первый файл: %q", first.Name)
	}
	if second.Name != folder.ID+"_a_1_2.txt" {
		t.Errorf("второй файл: %q", second.Name)
	}

	if data, _ := store.Bytes(first.Name); string(data) != "hash" {
		t.Errorf("содержимое первого артефакта: %q", data)
	}
	if data, _ := store.Bytes(second.Name); string(data) != "underscore" {
		t.Errorf("содержимое второго артефакта: %q", data)
	}
	if len(db.snapshot().files) != 2 || len(store.Names()) != 2 {
		t.Error("ожидалось две записи и два артефакта")
	}
}

func TestUpload_PersistenceFailureRollsBack(t *testing.T) {
	tests := []struct {
		name   string
		inject func(db *memDB)
	}{
		{"ошибка создания папки", func(db *memDB) { db.failFolderCreate = true }},
		{"ошибка создания второго файла", func(db *memDB) { db.failFileCreateAt = 2 }},
		{"ошибка запечатывания", func(db *memDB) { db.failSeal = true }},
		{"ошибка фиксации транзакции", func(db *memDB) { db.commitErr = errInjected }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemDB()
			tt.inject(db)
			store := contentstore.NewMemory()
			pub := &recordingPublisher{}
			s := newTestUploadService(db, store, pub)

			_, err := s.Upload(context.Background(), []FilePart{
				part("a.txt", "text/plain", []byte("a")),
				part("b.txt", "text/plain", []byte("b")),
			})

			var pErr *PersistenceError
			if !errors.As(err, &pErr) {
				t.Fatalf("ожидалась PersistenceError, получено %v", err)
			}
			if !errors.Is(err, errInjected) {
				t.Error("исходная ошибка должна быть доступна через errors.Is")
			}

			st := db.snapshot()
			if len(st.folders) != 0 || len(st.files) != 0 {
				t.Errorf("после отката в БД: папок %d, файлов %d", len(st.folders), len(st.files))
			}
			if names := store.Names(); len(names) != 0 {
				t.Errorf("после отката остались артефакты: %v", names)
			}
			if store.PendingStaged() != 0 {
				t.Errorf("остались временные артефакты: %d", store.PendingStaged())
			}
			if len(pub.events) != 0 {
				t.Error("событие не должно публиковаться при ошибке")
			}
		})
	}
}

func TestUpload_StoreFailure(t *testing.T) {
	tests := []struct {
		name  string
		store *failingStore
		op    string
	}{
		{"ошибка записи второго артефакта", &failingStore{Memory: contentstore.NewMemory(), failStageAt: 2}, "stage"},
		{"ошибка фиксации второго артефакта", &failingStore{Memory: contentstore.NewMemory(), failCommitAt: 2}, "commit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemDB()
			s := newTestUploadService(db, tt.store, nil)

			_, err := s.Upload(context.Background(), []FilePart{
				part("a.txt", "text/plain", []byte("a")),
				part("b.txt", "text/plain", []byte("b")),
				part("c.txt", "text/plain", []byte("c")),
			})

			var ioErr *IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("ожидалась IOError, получено %v", err)
			}
			if ioErr.Op != tt.op {
				t.Errorf("IOError.Op = %q, ожидалось %q", ioErr.Op, tt.op)
			}

			st := db.snapshot()
			if len(st.folders) != 0 || len(st.files) != 0 {
				t.Error("записи в БД не должны сохраниться")
			}
			if names := tt.store.Names(); len(names) != 0 {
				t.Errorf("остались артефакты: %v", names)
			}
			if tt.store.PendingStaged() != 0 {
				t.Errorf("остались временные артефакты: %d", tt.store.PendingStaged())
			}
		})
	}
}

func TestUpload_ExistingArtifactNotOverwritten(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	const id = "0c1d2e3f-4a5b-4c6d-8e7f-9a0b1c2d3e4f"
	s.newID = func() string { return id }
	// Осиротевший артефакт с тем же именем
	if err := store.Put(id+"_a.txt", []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// newID возвращает один ID и для файлов, поэтому один файл
	folder, err := s.Upload(context.Background(), []FilePart{part("a.txt", "text/plain", []byte("new"))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if folder.Files[0].Name != id+"_a_2.txt" {
		t.Errorf("name = %q, ожидалось имя с суффиксом", folder.Files[0].Name)
	}
	if data, _ := store.Bytes(id + "_a.txt"); string(data) != "old" {
		t.Error("существующий артефакт перезаписан")
	}
}

func TestUpload_ContentTypeFallback(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	folder, err := s.Upload(context.Background(), []FilePart{
		part("image", "", png),
		part("empty", "", nil),
		part("declared.bin", "application/x-custom", png),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if got := folder.Files[0].Type; got != "image/png" {
		t.Errorf("тип по содержимому = %q, ожидалось image/png", got)
	}
	if got := folder.Files[1].Type; got != defaultContentType {
		t.Errorf("тип пустого файла = %q", got)
	}
	if got := folder.Files[2].Type; got != "application/x-custom" {
		t.Errorf("заявленный тип должен сохраняться: %q", got)
	}
}

func TestUpload_PublishesEvent(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	pub := &recordingPublisher{err: errInjected}
	s := newTestUploadService(db, store, pub)

	// Ошибка публикации не влияет на результат
	folder, err := s.Upload(context.Background(), []FilePart{
		part("a.txt", "text/plain", []byte("12345")),
		part("b.txt", "text/plain", []byte("678")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("событий: %d, ожидалось 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.FolderID != folder.ID || ev.FileCount != 2 || ev.TotalSize != 8 {
		t.Errorf("событие: %+v", ev)
	}
}

func TestUpload_CanceledContext(t *testing.T) {
	db := newMemDB()
	store := contentstore.NewMemory()
	s := newTestUploadService(db, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Upload(ctx, []FilePart{part("a.txt", "text/plain", []byte("a"))})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
	if db.txCount != 0 || len(store.Names()) != 0 {
		t.Error("отменённый запрос не должен иметь побочных эффектов")
	}
}

// TestUpload_LocalStore проверяет загрузку на диск: артефакты на месте,
// временных файлов не остаётся.
func TestUpload_LocalStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "uploads")
	store, err := contentstore.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	db := newMemDB()
	s := newTestUploadService(db, store, nil)

	folder, err := s.Upload(context.Background(), []FilePart{
		part("report final.pdf", "application/pdf", []byte("0123456789")),
		part("a#1.txt", "text/plain", []byte("x")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	for _, f := range folder.Files {
		info, err := os.Stat(filepath.Join(dir, f.Name))
		if err != nil {
			t.Fatalf("артефакт %s: %v", f.Name, err)
		}
		if info.Size() != f.Size {
			t.Errorf("размер %s = %d, ожидалось %d", f.Name, info.Size(), f.Size)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	artifacts := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasPrefix(e.Name(), folder.ID+"_") {
			t.Errorf("посторонний файл в директории контента: %s", e.Name())
		}
		artifacts++
	}
	if artifacts != 2 {
		t.Errorf("артефактов на диске: %d, ожидалось 2", artifacts)
	}

	staging, _ := os.ReadDir(filepath.Join(dir, ".staging"))
	if len(staging) != 0 {
		t.Errorf("остались временные файлы: %d", len(staging))
	}
}

// TestUpload_LocalStoreLongName проверяет, что длинное исходное имя
// укорачивается до 255 байт и артефакт записывается на диск.
func TestUpload_LocalStoreLongName(t *testing.T) {
	dir := t.TempDir()
	store, err := contentstore.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	s := newTestUploadService(newMemDB(), store, nil)

	original := strings.Repeat("b", 246) + ".pdf"
	folder, err := s.Upload(context.Background(), []FilePart{
		part(original, "application/pdf", []byte("pdf")),
		part(original, "application/pdf", []byte("pdf2")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	for _, f := range folder.Files {
		if len(f.Name) != maxStoredNameLen {
			t.Errorf("длина имени %d, ожидалось %d", len(f.Name), maxStoredNameLen)
		}
		if !strings.HasSuffix(f.Name, ".pdf") {
			t.Errorf("расширение потеряно: %q", f.Name)
		}
		if f.OriginalName != original {
			t.Error("исходное имя должно сохраняться без изменений")
		}
		info, err := os.Stat(filepath.Join(dir, f.Name))
		if err != nil {
			t.Fatalf("артефакт %s: %v", f.Name, err)
		}
		if info.Size() != f.Size {
			t.Errorf("размер %d, ожидалось %d", info.Size(), f.Size)
		}
	}
	if folder.Files[0].Name == folder.Files[1].Name {
		t.Error("одинаковые длинные имена должны получить разные имена хранения")
	}
}

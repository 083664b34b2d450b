// Пакет progress — отчёт о ходе чтения тела запроса.
//
// Reader оборачивает io.Reader и публикует события Event в канал.
// Отправка неблокирующая: медленный потребитель пропускает промежуточные
// события, но итоговое событие (Final) доставляется всегда, после чего
// канал закрывается.
package progress

import (
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultStep — минимальный прирост байт между промежуточными событиями.
	DefaultStep = 64 << 10
	// eventBuffer — ёмкость канала событий.
	eventBuffer = 16
)

// Event — снимок прогресса.
type Event struct {
	// Read — прочитано байт
	Read int64
	// Total — ожидаемый объём (-1, если неизвестен)
	Total int64
	// Final — последнее событие последовательности
	Final bool
	// Err — ошибка чтения, завершившая последовательность (кроме io.EOF)
	Err error
}

// Percent возвращает долю прочитанного в процентах (-1, если Total неизвестен).
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return -1
	}
	p := float64(e.Read) * 100 / float64(e.Total)
	if p > 100 {
		p = 100
	}
	return p
}

// Reader — io.ReadCloser с отчётом о прогрессе.
// Read не предназначен для конкурентного вызова.
type Reader struct {
	r     io.Reader
	total int64
	step  int64

	read     int64
	lastSent int64

	events chan Event
	once   sync.Once
	done   atomic.Bool
}

// NewReader оборачивает r. total — ожидаемый объём (например,
// Content-Length), отрицательное значение — неизвестен.
func NewReader(r io.Reader, total int64) *Reader {
	return NewReaderStep(r, total, DefaultStep)
}

// NewReaderStep — как NewReader, с заданным шагом событий.
func NewReaderStep(r io.Reader, total, step int64) *Reader {
	if total < 0 {
		total = -1
	}
	if step <= 0 {
		step = 1
	}
	return &Reader{
		r:      r,
		total:  total,
		step:   step,
		events: make(chan Event, eventBuffer),
	}
}

// Events возвращает канал событий. Канал закрывается после Final-события.
func (pr *Reader) Events() <-chan Event {
	return pr.events
}

// Read читает из исходного reader и публикует промежуточные события.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.read += int64(n)

	if err != nil {
		if err == io.EOF {
			pr.finish(nil)
		} else {
			pr.finish(err)
		}
		return n, err
	}

	if n > 0 && pr.read-pr.lastSent >= pr.step && !pr.done.Load() {
		select {
		case pr.events <- Event{Read: pr.read, Total: pr.total}:
			pr.lastSent = pr.read
		default:
			// Потребитель не успевает — событие пропускается
		}
	}
	return n, nil
}

// Close завершает последовательность событий и закрывает исходный reader,
// если он реализует io.Closer.
func (pr *Reader) Close() error {
	pr.finish(nil)
	if c, ok := pr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// finish отправляет Final-событие и закрывает канал. Идемпотентна.
func (pr *Reader) finish(err error) {
	pr.once.Do(func() {
		pr.done.Store(true)
		final := Event{Read: pr.read, Total: pr.total, Final: true, Err: err}
		for {
			select {
			case pr.events <- final:
				close(pr.events)
				return
			default:
			}
			// Канал заполнен: вытесняем самое старое промежуточное событие
			select {
			case <-pr.events:
			default:
			}
		}
	})
}

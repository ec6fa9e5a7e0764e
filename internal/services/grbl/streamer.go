package grbl

import (
	"errors"

	"github.com/iwtcode/grblService/internal/metrics"
)

// ErrLineTooLong - строка не помещается в приемный буфер контроллера даже пустого.
var ErrLineTooLong = errors.New("line exceeds controller buffer")

// TerminalJobID помечает строки, отправленные через терминал, а не программой.
const TerminalJobID = ""

// Entry - строка в очереди или в полете. Size учитывает завершающий перевод строки.
type Entry struct {
	JobID string
	Line  string
	Size  int
}

// Streamer реализует посимвольный контроль потока GRBL.
// Строка отправляется, только если outstanding + Size <= capacity.
// Методы не потокобезопасны: вызывающий (Controller) сериализует доступ своим мьютексом.
type Streamer struct {
	rxSize      int
	capacity    int
	queue       []Entry
	inflight    []Entry
	outstanding int
	metrics     *metrics.Metrics
}

func NewStreamer(rxSize int, m *metrics.Metrics) *Streamer {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	s := &Streamer{rxSize: rxSize, capacity: rxSize, metrics: m}
	s.observe()
	return s
}

// Enqueue ставит строки задания в конец очереди на отправку.
func (s *Streamer) Enqueue(jobID string, lines []string) {
	for _, line := range lines {
		s.queue = append(s.queue, Entry{JobID: jobID, Line: line, Size: len(line) + 1})
	}
}

// Fill отправляет строки из очереди, пока они помещаются в буфер контроллера.
// Возвращает отправленные записи. При ошибке записи строка остается в очереди.
func (s *Streamer) Fill(write func(line string) error) ([]Entry, error) {
	var sent []Entry
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.Size > s.rxSize {
			return sent, ErrLineTooLong
		}
		if s.outstanding+next.Size > s.capacity {
			break
		}
		if err := write(next.Line); err != nil {
			return sent, err
		}
		s.queue = s.queue[1:]
		s.inflight = append(s.inflight, next)
		s.outstanding += next.Size
		s.metrics.LinesSent.Inc()
		sent = append(sent, next)
	}
	s.observe()
	return sent, nil
}

// Ack снимает самую старую строку в полете. Подтверждения приходят строго в порядке отправки.
func (s *Streamer) Ack() (Entry, bool) {
	if len(s.inflight) == 0 {
		return Entry{}, false
	}
	head := s.inflight[0]
	s.inflight = s.inflight[1:]
	s.outstanding -= head.Size
	s.metrics.LinesAcked.Inc()
	s.observe()
	return head, true
}

// Discard удаляет из очереди неотправленные строки задания. Строки в полете не затрагиваются.
func (s *Streamer) Discard(jobID string) int {
	kept := s.queue[:0]
	dropped := 0
	for _, e := range s.queue {
		if e.JobID == jobID {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	s.queue = kept
	return dropped
}

// SetCapacity применяет размер буфера из последнего отчета Bf.
// Если новое значение меньше outstanding, отправка ждет подтверждений.
func (s *Streamer) SetCapacity(bytes int) {
	if bytes <= 0 {
		return
	}
	s.capacity = bytes
	s.observe()
}

// Reset очищает очередь и строки в полете после сброса контроллера или потери связи.
func (s *Streamer) Reset() {
	s.queue = nil
	s.inflight = nil
	s.outstanding = 0
	s.capacity = s.rxSize
	s.observe()
}

func (s *Streamer) Outstanding() int { return s.outstanding }
func (s *Streamer) Capacity() int    { return s.capacity }
func (s *Streamer) RxSize() int      { return s.rxSize }

// Pending возвращает число неотправленных строк задания.
func (s *Streamer) Pending(jobID string) int {
	n := 0
	for _, e := range s.queue {
		if e.JobID == jobID {
			n++
		}
	}
	return n
}

// InFlight возвращает число неподтвержденных строк задания.
func (s *Streamer) InFlight(jobID string) int {
	n := 0
	for _, e := range s.inflight {
		if e.JobID == jobID {
			n++
		}
	}
	return n
}

func (s *Streamer) observe() {
	s.metrics.Outstanding.Set(float64(s.outstanding))
	s.metrics.Capacity.Set(float64(s.capacity))
}

package programs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
)

// Store - хранилище программ в памяти процесса.
type Store struct {
	mu        sync.RWMutex
	programs  map[string]*entities.Program
	publisher interfaces.EventPublisher
	logger    *logging.Logger
}

var _ interfaces.ProgramStore = (*Store)(nil)

func NewStore(publisher interfaces.EventPublisher, logger *logging.Logger) *Store {
	return &Store{
		programs:  make(map[string]*entities.Program),
		publisher: publisher,
		logger:    logger.WithPrefix("PROGRAMS"),
	}
}

// Upload добавляет или перезаписывает программу.
// Уже запущенное задание держит ссылку на прежнее значение и не затрагивается.
func (s *Store) Upload(name, content string) (*entities.Program, error) {
	if name == "" || content == "" {
		return nil, fmt.Errorf("name and content are required: %w", apperrors.ErrMissingFields)
	}

	program := entities.NewProgram(name, content)

	s.mu.Lock()
	_, replaced := s.programs[name]
	s.programs[name] = program
	s.mu.Unlock()

	s.logger.Info("Program uploaded", "name", name, "lines", len(program.Lines), "replaced", replaced)
	s.publisher.Emit(entities.EventProgramUploaded, map[string]interface{}{"name": name})
	return program, nil
}

func (s *Store) Get(name string) (*entities.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	program, found := s.programs[name]
	if !found {
		return nil, fmt.Errorf("program '%s': %w", name, apperrors.ErrProgramNotFound)
	}
	return program, nil
}

func (s *Store) Delete(name string) error {
	s.mu.Lock()
	_, found := s.programs[name]
	delete(s.programs, name)
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("program '%s': %w", name, apperrors.ErrProgramNotFound)
	}
	s.logger.Info("Program deleted", "name", name)
	s.publisher.Emit(entities.EventProgramDeleted, map[string]interface{}{"name": name})
	return nil
}

// List возвращает имена программ в алфавитном порядке.
func (s *Store) List() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.programs))
	for name := range s.programs {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// LoadMacros загружает файлы *.g и *.nc из каталога как программы "macro_<имя>".
// Отсутствующий каталог не считается ошибкой.
func (s *Store) LoadMacros(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("не удалось прочитать каталог макросов %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".g" && ext != ".nc" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Warn("Failed to read macro file", "file", entry.Name(), "error", err)
			continue
		}
		name := "macro_" + strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, err := s.Upload(name, string(data)); err != nil {
			s.logger.Warn("Skipping macro", "file", entry.Name(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

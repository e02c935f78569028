package logging

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LoggerManager раздаёт логгеры компонентов и хранит их уровни
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
	levels  map[string]LogLevel // уровни, заданные до создания логгера
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
			levels:  make(map[string]LogLevel),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	logger, exists := lm.loggers[component]
	lm.mu.RUnlock()
	if exists {
		return logger, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер %s: %w", component, err)
	}
	if level, ok := lm.levels[component]; ok {
		logger.minConsoleLevel = level
	}
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger возвращает логгер; если файл логов не создаётся, пишет только в консоль
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}

	level := consoleLevel
	lm.mu.RLock()
	if l, ok := lm.levels[component]; ok {
		level = l
	}
	lm.mu.RUnlock()
	return &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: level,
		minFileLevel:    ERROR,
	}
}

// SetLevel задаёт консольный уровень компонента, в том числе ещё не созданного
func (lm *LoggerManager) SetLevel(component string, level LogLevel) {
	lm.mu.Lock()
	lm.levels[component] = level
	logger := lm.loggers[component]
	lm.mu.Unlock()

	if logger != nil {
		logger.mu.Lock()
		logger.minConsoleLevel = level
		logger.mu.Unlock()
	}
}

// ApplyLevels разбирает строку вида "network=debug,storage=warn".
// Пустые элементы пропускаются, элемент без "=" — ошибка.
func (lm *LoggerManager) ApplyLevels(spec string) error {
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		component, level, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(component) == "" {
			return fmt.Errorf("уровень логирования %q: ожидается компонент=уровень", item)
		}
		lm.SetLevel(strings.TrimSpace(component), ParseLevel(level))
	}
	return nil
}

// CloseAll закрывает файлы всех логгеров
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("закрытие логгера %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// ListComponents возвращает имена созданных логгеров по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

// Логгеры подсистем сервера
func GetNetworkLogger() *Logger { return GetComponentLogger("network") }
func GetStorageLogger() *Logger { return GetComponentLogger("storage") }
func GetWorldLogger() *Logger   { return GetComponentLogger("world") }
func GetAPILogger() *Logger     { return GetComponentLogger("api") }

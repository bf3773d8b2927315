package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/T3-Labs/edge-framepool/pkg/logger"
)

// Watcher observa o arquivo de configuração e entrega a versão recarregada
// ao callback. Editores costumam trocar o arquivo por rename, então o watch
// fica no diretório e os eventos são filtrados pelo nome.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onChange func(*Config)
	done     chan struct{}
}

func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	return &Watcher{
		path:     abs,
		fsw:      fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	// Debounce: um save gera uma rajada de eventos; só recarrega depois que
	// o arquivo sossega
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(500 * time.Millisecond)
				timerC = timer.C
			} else {
				timer.Reset(500 * time.Millisecond)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if logger.Log != nil {
				logger.Log.Warnw("Erro no watcher de configuração", "error", err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		if logger.Log != nil {
			logger.Log.Errorw("Falha ao recarregar configuração",
				"path", w.path,
				"error", err)
		}
		return
	}

	if logger.Log != nil {
		logger.Log.Infow("Configuração recarregada",
			"path", w.path,
			"streams", len(cfg.Streams))
	}
	w.onChange(cfg)
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

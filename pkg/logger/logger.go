package logger

import (
	"go.uber.org/zap"
)

var (
	Log *zap.SugaredLogger
)

func InitLogger(development bool) error {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Sampling = &zap.SamplingConfig{
		Initial:    100,
		Thereafter: 100,
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Log = logger.Sugar()
	return nil
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Named retorna um logger com o nome do componente, ou nil se o logger
// global ainda não foi inicializado.
func Named(component string) *zap.SugaredLogger {
	if Log == nil {
		return nil
	}
	return Log.Named(component)
}

func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	if Log == nil {
		return nil
	}

	keyValuePairs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		keyValuePairs = append(keyValuePairs, k, v)
	}

	return Log.With(keyValuePairs...)
}

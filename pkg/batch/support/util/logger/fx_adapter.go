package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter routes fx lifecycle events to the package logger as structured entries.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from Fx. Wiring noise goes to DEBUG, failures to ERROR.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	log := L().With(zap.String("component", "fx"))

	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		log.Debug("OnStart hook executing", zap.String("callee", trimFuncSuffix(e.FunctionName)))
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			log.Error("OnStart hook failed", zap.String("callee", trimFuncSuffix(e.FunctionName)), zap.Error(e.Err))
			return
		}
		log.Debug("OnStart hook executed", zap.String("callee", trimFuncSuffix(e.FunctionName)), zap.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuting:
		log.Debug("OnStop hook executing", zap.String("callee", trimFuncSuffix(e.FunctionName)))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			log.Error("OnStop hook failed", zap.String("callee", trimFuncSuffix(e.FunctionName)), zap.Error(e.Err))
			return
		}
		log.Debug("OnStop hook executed", zap.String("callee", trimFuncSuffix(e.FunctionName)))
	case *fxevent.Supplied:
		if e.Err != nil {
			log.Error("Supply failed", zap.String("type", e.TypeName), zap.Error(e.Err))
			return
		}
		log.Debug("Supplied", zap.String("type", e.TypeName))
	case *fxevent.Provided:
		if e.Err != nil {
			log.Error("Provide failed", zap.String("constructor", e.ConstructorName), zap.Error(e.Err))
			return
		}
		log.Debug("Provided", zap.String("constructor", trimFuncSuffix(e.ConstructorName)), zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Decorated:
		if e.Err != nil {
			log.Error("Decorate failed", zap.String("decorator", e.DecoratorName), zap.Error(e.Err))
			return
		}
		log.Debug("Decorated", zap.String("decorator", trimFuncSuffix(e.DecoratorName)), zap.Strings("types", e.OutputTypeNames))
	case *fxevent.Invoking:
		log.Debug("Invoking", zap.String("function", trimFuncSuffix(e.FunctionName)))
	case *fxevent.Invoked:
		if e.Err != nil {
			log.Error("Invoke failed", zap.String("function", e.FunctionName), zap.Error(e.Err))
		}
	case *fxevent.Stopping:
		log.Debug("Stopping", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			log.Error("Stop failed", zap.Error(e.Err))
		}
	case *fxevent.RollingBack:
		log.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		if e.Err != nil {
			log.Error("Rollback failed", zap.Error(e.Err))
		}
	case *fxevent.Started:
		if e.Err != nil {
			log.Error("Start failed", zap.Error(e.Err))
			return
		}
		log.Info("Application started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			log.Error("Custom logger initialization failed", zap.Error(e.Err))
			return
		}
		log.Debug("Custom logger initialized", zap.String("constructor", e.ConstructorName))
	}
}

// trimFuncSuffix drops the ".funcN" part fx appends for closures.
func trimFuncSuffix(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}

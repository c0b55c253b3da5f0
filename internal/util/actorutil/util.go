package actorutil

import (
	"log/slog"
	"time"

	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToWriteCommand resolves an inbound command against the
// attribute registry. A nil, nil return means the topic does not target a
// commandable attribute and the message should be ignored.
func ParsedMQTTCommandToWriteCommand(cmd mqtt.ParsedMQTTCommand, registry *domain.AttributeRegistry) (*domain.WriteCommand, error) {
	attr, ok := registry.ByTopicSuffix(cmd.TopicSuffix)
	if !ok {
		return nil, nil
	}
	if !attr.Writable() {
		return nil, nil
	}
	return &domain.WriteCommand{
		Key:        attr.Key,
		Payload:    cmd.Payload,
		ReceivedAt: time.Now(),
	}, nil
}

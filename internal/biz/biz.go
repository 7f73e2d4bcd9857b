package biz

import (
	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Recorder     *usecase.SendResultRecorder
	Dispatcher   *usecase.Dispatcher
	Conversation *usecase.ConversationUsecase
}

// NewUsecases wires the usecases around the given repositories. chat may be nil.
func NewUsecases(
	platform repo.PlatformRepo,
	messages repo.MessageRepo,
	chat repo.ChatRepo,
	bot domain.BotIdentity,
	dispatchCfg usecase.DispatchConfig,
	chatCfg usecase.ChatConfig,
) *Usecases {
	recorder := usecase.NewSendResultRecorder(messages, bot)
	return &Usecases{
		Recorder:     recorder,
		Dispatcher:   usecase.NewDispatcher(platform, recorder, dispatchCfg),
		Conversation: usecase.NewConversationUsecase(chat, messages, chatCfg),
	}
}
